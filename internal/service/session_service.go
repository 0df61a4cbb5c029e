package service

import (
	"errors"
	"fmt"
	"time"

	"servicelines-be/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "servicelines-be"

type ISessionService interface {
	Issue() (*dto.SessionResponse, error)
	Parse(token string) (string, error)
}

type sessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type sessionService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(secret string, ttl time.Duration) ISessionService {
	return &sessionService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for a fresh browser session.
func (s *sessionService) Issue() (*dto.SessionResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	sessionID := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &dto.SessionResponse{
		SessionID: sessionID,
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *sessionService) Parse(tokenStr string) (string, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.SessionID == "" {
		return "", errors.New("session token carries no session id")
	}
	return claims.SessionID, nil
}
