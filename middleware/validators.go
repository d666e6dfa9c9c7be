package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/llm-bridge/services"
)

// StaticKeyValidator accepts a single shared API key
type StaticKeyValidator struct {
	key []byte
}

// NewStaticKeyValidator creates a validator for the given key
func NewStaticKeyValidator(key string) *StaticKeyValidator {
	return &StaticKeyValidator{key: []byte(key)}
}

// ValidateToken compares the token with the configured key in constant time
func (v *StaticKeyValidator) ValidateToken(_ context.Context, token string) (*Claims, error) {
	if len(v.key) == 0 || subtle.ConstantTimeCompare([]byte(token), v.key) != 1 {
		return nil, services.ErrInvalidAPIKey
	}
	return &Claims{Subject: "api-key", Method: AuthMethodAPIKey}, nil
}

// JWTValidator accepts HS256 tokens signed with a shared secret
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator creates a validator. An empty issuer accepts any issuer.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken verifies the signature, expiry and issuer
func (v *JWTValidator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, services.ErrInvalidToken
	}

	out := &Claims{Subject: claims.Subject, Issuer: claims.Issuer, Method: AuthMethodJWT}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out, nil
}

// ChainValidator tries each validator in order and returns the first success
type ChainValidator []TokenValidator

// ValidateToken implements TokenValidator
func (c ChainValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	err := error(services.ErrUnauthorized)
	for _, v := range c {
		claims, vErr := v.ValidateToken(ctx, token)
		if vErr == nil {
			return claims, nil
		}
		err = vErr
	}
	return nil, err
}
