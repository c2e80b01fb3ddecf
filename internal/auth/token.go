package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims - содержимое токена доступа: sub (id пользователя), role, exp, iat
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет HS256 токены доступа
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue подписывает токен для пользователя
func (m *TokenManager) Issue(p models.Principal) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия и возвращает владельца токена
func (m *TokenManager) Parse(raw string) (models.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	switch claims.Role {
	case models.RoleUser, models.RoleAdmin, models.RoleSuperadmin:
	default:
		return models.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return models.Principal{ID: id, Role: claims.Role}, nil
}
