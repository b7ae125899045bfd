package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

// AuthService verifies access tokens minted by the identity service. This
// API never issues tokens.
type AuthService struct {
	secret []byte
}

// NewAuthService constructs the verifier.
func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

// ValidateToken parses and verifies an HS256 access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}
