// Package auth verifies bearer tokens and guards routes.
//
// The Oracle interface is the token verification contract: implementations
// verify a compact token and return its claims. Two implementations ship
// here: an HMAC oracle for first-party tokens signed with the tenant's
// token secret, and a JWKS oracle that fetches issuer public keys on demand
// and caches them. Verified claims are additionally cached by token until
// they expire, so hot paths skip signature checks.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/router"
)

// Claims are the verified token payload.
type Claims struct {
	Subject     string
	TenantID    string
	Roles       []string
	Permissions []string
	ExpiresAt   time.Time
}

// SubjectID identifies the claims when they act as the request principal.
// The audit trail records it as the actor id.
func (c *Claims) SubjectID() any {
	if c == nil || c.Subject == "" {
		return nil
	}
	return c.Subject
}

// HasPermission reports whether the claims carry a permission slug.
func (c *Claims) HasPermission(slug string) bool {
	for _, p := range c.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}

// HasRole reports whether the claims carry a role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Oracle verifies a compact bearer token.
type Oracle interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type claimsKey struct{}

// ClaimsFrom returns the verified claims installed by RequireAuth, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// BearerToken extracts the token from an Authorization header value. A
// missing or malformed header is an authentication failure.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.AuthenticationFailure("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperrors.AuthenticationFailure("malformed authorization header")
	}
	return parts[1], nil
}

// RequireAuth wraps a handler with bearer token verification. Verified
// claims go onto the context and, when the ambient frame is present, the
// frame's principal.
func RequireAuth(oracle Oracle, handler router.Handler) router.Handler {
	return func(ctx context.Context, r *http.Request, params router.Params) ([]byte, error) {
		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			return nil, err
		}
		claims, err := oracle.Verify(ctx, token)
		if err != nil {
			return nil, err
		}
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		appctx.SetPrincipal(ctx, claims)
		return handler(ctx, r, params)
	}
}

// RequirePermission further guards an authenticated handler: claims missing
// the permission are rejected with a permission error.
func RequirePermission(oracle Oracle, slug string, handler router.Handler) router.Handler {
	return RequireAuth(oracle, func(ctx context.Context, r *http.Request, params router.Params) ([]byte, error) {
		claims := ClaimsFrom(ctx)
		if claims == nil || !claims.HasPermission(slug) {
			return nil, apperrors.PermissionDenied(fmt.Sprintf("missing permission: %s", slug))
		}
		return handler(ctx, r, params)
	})
}

// claimsCache memoises verified claims by token until expiry.
type claimsCache struct {
	mu      sync.Mutex
	entries map[string]*Claims
}

func newClaimsCache() *claimsCache {
	return &claimsCache{entries: make(map[string]*Claims)}
}

func (c *claimsCache) get(token string) *Claims {
	c.mu.Lock()
	defer c.mu.Unlock()
	claims, ok := c.entries[token]
	if !ok {
		return nil
	}
	if time.Now().After(claims.ExpiresAt) {
		delete(c.entries, token)
		return nil
	}
	return claims
}

func (c *claimsCache) put(token string, claims *Claims) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = claims
}

func claimsFromToken(token *jwt.Token) (*Claims, error) {
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.AuthenticationFailure("unexpected token claims")
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if tenant, ok := mapClaims["tenant"].(string); ok {
		claims.TenantID = tenant
	}
	claims.Roles = stringSlice(mapClaims["roles"])
	claims.Permissions = stringSlice(mapClaims["permissions"])
	return claims, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
