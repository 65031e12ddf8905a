package jwttoken

import (
	authmw "discard/pkg/platform/middleware/auth"
)

// Validator plugs JWTService into the bearer middleware.
type Validator struct {
	tokens *JWTService
}

func NewValidator(tokens *JWTService) Validator {
	return Validator{tokens: tokens}
}

func (v Validator) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	claims, err := v.tokens.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: claims.UserID, JTI: claims.ID}, nil
}
