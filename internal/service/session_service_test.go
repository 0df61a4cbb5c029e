package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionServiceRoundTrip(t *testing.T) {
	svc := NewSessionService("secret", time.Hour)

	res, err := svc.Issue()
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.Token)

	id, err := svc.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, id)
}

func TestSessionServiceRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewSessionService("secret", time.Hour)
	other := NewSessionService("other-secret", time.Hour)

	res, err := other.Issue()
	require.NoError(t, err)
	_, err = svc.Parse(res.Token)
	assert.Error(t, err)

	expired := NewSessionService("secret", -time.Minute)
	res, err = expired.Issue()
	require.NoError(t, err)
	_, err = svc.Parse(res.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = svc.Parse("not-a-token")
	assert.Error(t, err)
}
