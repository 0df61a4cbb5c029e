package serverutils

import (
	"errors"

	"servicelines-be/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by later handlers into the
// standard error envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return writeError(ctx, err)
	}
}

// ErrorHandler is the fiber.Config hook for errors that escape middleware.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	return writeError(ctx, err)
}

func writeError(ctx *fiber.Ctx, err error) error {
	status := apperr.StatusOf(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	return ctx.Status(status).JSON(ErrorResponse(status, err.Error()))
}
