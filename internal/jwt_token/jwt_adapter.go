package jwttoken

import (
	authmw "flock/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *OperatorClaims) *authmw.JWTClaims {
	return &authmw.JWTClaims{
		OperatorID: claims.Subject,
		Name:       claims.Name,
		JTI:        claims.ID,
	}
}

// JWTServiceAdapter satisfies the auth middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
