package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. Token issuance
// lives in the identity service; this API only verifies.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	StaffID  string   `json:"staff_id,omitempty"`
	jwt.RegisteredClaims
}
