package jwttoken

import (
	"did-registry/internal/platform/middleware"
)

// JWTServiceAdapter bridges JWTService to the middleware.TokenValidator
// interface without the middleware importing jwt types.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.TokenClaims{Subject: claims.Subject}, nil
}
