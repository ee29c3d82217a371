package jwttoken

import (
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/middleware"
)

// BearerValidator is what RequireAuth sees of the tokens the identity service
// issues. Only the subject user id and the token id cross into the request
// context; issuer, audience and expiry are enforced here and then dropped.
type BearerValidator struct {
	tokens *JWTService
}

func NewBearerValidator(tokens *JWTService) *BearerValidator {
	return &BearerValidator{tokens: tokens}
}

// ValidateToken returns CodeUnauthorized for any token this service would not
// let act on a user's registration groups.
func (v *BearerValidator) ValidateToken(bearer string) (*middleware.JWTClaims, error) {
	claims, err := v.tokens.ValidateToken(bearer)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{UserID: claims.UserID, JTI: claims.ID}, nil
}

var _ middleware.JWTValidator = (*BearerValidator)(nil)
