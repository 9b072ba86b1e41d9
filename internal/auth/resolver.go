package auth

import (
	"context"
	"strings"
)

const bearerScheme = "Bearer "

// Resolver turns inbound credential headers into an Identity. Resolution
// order is fixed: a bearer token, when present, alone determines identity;
// an invalid bearer token is a hard failure and never falls through to the
// API key. The API key header is consulted only when no bearer token was
// supplied.
type Resolver struct {
	tokens *TokenService
	svc    *Service
}

// NewResolver constructs a Resolver.
func NewResolver(tokens *TokenService, svc *Service) *Resolver {
	return &Resolver{tokens: tokens, svc: svc}
}

// Authenticate resolves the Authorization and X-API-Key header values.
// With neither present it fails with ErrAuthenticationRequired.
func (r *Resolver) Authenticate(ctx context.Context, authorization, apiKey string) (Identity, error) {
	authorization = strings.TrimSpace(authorization)
	if strings.HasPrefix(authorization, bearerScheme) {
		token := strings.TrimSpace(authorization[len(bearerScheme):])
		claims, err := r.tokens.Validate(token)
		if err != nil {
			return Identity{}, err
		}
		return Identity{
			UserID:   claims.Subject,
			Username: claims.Username,
			IsAdmin:  claims.IsAdmin,
			Method:   MethodJWT,
		}, nil
	}

	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		return r.svc.resolveAPIKey(ctx, apiKey)
	}

	return Identity{}, ErrAuthenticationRequired
}
