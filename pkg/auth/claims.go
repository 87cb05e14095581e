package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by clients. User ids
// are opaque strings issued by the identity provider.
type AccessTokenClaims struct {
	UserID string     `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}
