package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	p := models.Principal{ID: uuid.New(), Role: models.RoleAdmin}

	raw, err := m.Issue(p)
	require.NoError(t, err)

	got, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute)
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }

	raw, err := m.Issue(models.Principal{ID: uuid.New(), Role: models.RoleUser})
	require.NoError(t, err)

	m.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = m.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	raw, err := NewTokenManager("secret-a", time.Hour).Issue(models.Principal{ID: uuid.New(), Role: models.RoleUser})
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsUnknownRole(t *testing.T) {
	claims := Claims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewTokenManager("test-secret", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Garbage(t *testing.T) {
	_, err := NewTokenManager("test-secret", time.Hour).Parse("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
