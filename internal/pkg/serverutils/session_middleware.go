package serverutils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const LocalSessionID = "session_id"

// SessionParser resolves a bearer token to its session id.
type SessionParser interface {
	Parse(token string) (string, error)
}

// BearerToken reads the Authorization header, falling back to the "token"
// query parameter used by browser websocket clients.
func BearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return ctx.Query("token")
}

func SessionMiddleware(parser SessionParser) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing session token"))
		}

		sessionID, err := parser.Parse(tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid session token"))
		}

		ctx.Locals(LocalSessionID, sessionID)
		return ctx.Next()
	}
}

// SessionID returns the id stored by SessionMiddleware.
func SessionID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(LocalSessionID).(string)
	return id
}
