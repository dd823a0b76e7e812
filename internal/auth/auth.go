package auth

import "github.com/golang-jwt/jwt/v5"

// Authenticator validates the access tokens the identity service issues.
// GenerateToken exists for tooling and tests; the storefront itself never
// mints user tokens.
type Authenticator interface {
	GenerateToken(userID int64) (string, error)
	ValidateToken(token string) (*jwt.Token, error)
}
