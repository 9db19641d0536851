package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

// Claims are the bearer token claims the API understands
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HMAC-signed bearer tokens and maps them to an Actor
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a resolver. An empty issuer disables the issuer check.
func NewJWTResolver(secret, issuer string) providers.IdentityResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

// Resolve parses token and returns the actor it names
func (r *JWTResolver) Resolve(ctx context.Context, token string) (*entities.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewUnauthorizedError("missing bearer token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, &apperrors.AppError{Type: apperrors.ErrorTypeUnauthorized, Message: "invalid bearer token", Err: err}
	}

	if r.issuer != "" && !claims.VerifyIssuer(r.issuer, true) {
		return nil, apperrors.NewUnauthorizedError("unexpected token issuer")
	}
	if claims.Subject == "" {
		return nil, apperrors.NewUnauthorizedError("token has no subject")
	}

	role := entities.ActorRole(claims.Role)
	if !role.IsValid() {
		return nil, apperrors.NewUnauthorizedError("token has no valid role").WithDetail("role", claims.Role)
	}

	return &entities.Actor{ID: claims.Subject, Role: role}, nil
}

// Sign issues a token for actor. Used by the seed script and tests.
func Sign(secret, issuer string, actor entities.Actor, expiresAt jwt.NumericDate) (string, error) {
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			ExpiresAt: &expiresAt,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
