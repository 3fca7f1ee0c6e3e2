package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/cuemby/burrow/pkg/apperrors"
)

// HMACOracle verifies first-party tokens signed with a shared secret, the
// tenant's token secret in practice.
type HMACOracle struct {
	secret []byte
	cache  *claimsCache
}

// NewHMACOracle builds an oracle over a shared signing secret.
func NewHMACOracle(secret string) *HMACOracle {
	return &HMACOracle{secret: []byte(secret), cache: newClaimsCache()}
}

// Verify parses and verifies a compact HS256 token.
func (o *HMACOracle) Verify(_ context.Context, token string) (*Claims, error) {
	if cached := o.cache.get(token); cached != nil {
		return cached, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return o.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperrors.AuthenticationFailure("invalid token")
	}

	claims, err := claimsFromToken(parsed)
	if err != nil {
		return nil, err
	}
	o.cache.put(token, claims)
	return claims, nil
}

// Sign issues a compact HS256 token for the given claims. Used by login
// handlers and tests.
func (o *HMACOracle) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         claims.Subject,
		"tenant":      claims.TenantID,
		"roles":       toAnySlice(claims.Roles),
		"permissions": toAnySlice(claims.Permissions),
		"exp":         claims.ExpiresAt.Unix(),
		"iat":         time.Now().Unix(),
	})
	signed, err := token.SignedString(o.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// JWKSOracle verifies third-party tokens against an issuer's published key
// set. Keys are fetched on first use and refreshed by the jwk cache;
// verified claims are memoised until they expire.
type JWKSOracle struct {
	issuer  string
	jwksURL string
	keys    *jwk.Cache
	cache   *claimsCache
}

// NewJWKSOracle registers the issuer's JWKS endpoint with a background
// refreshing key cache.
func NewJWKSOracle(ctx context.Context, issuer, jwksURL string) (*JWKSOracle, error) {
	keys := jwk.NewCache(ctx)
	if err := keys.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register jwks endpoint: %w", err)
	}
	return &JWKSOracle{issuer: issuer, jwksURL: jwksURL, keys: keys, cache: newClaimsCache()}, nil
}

// Verify parses a compact token, resolves its key by kid from the issuer's
// key set, and checks the issuer claim.
func (o *JWKSOracle) Verify(ctx context.Context, token string) (*Claims, error) {
	if cached := o.cache.get(token); cached != nil {
		return cached, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		set, err := o.keys.Get(ctx, o.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch issuer keys: %w", err)
		}
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("unknown key id %s", kid)
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("failed to materialise key %s: %w", kid, err)
		}
		return raw, nil
	}, jwt.WithIssuer(o.issuer))
	if err != nil || !parsed.Valid {
		return nil, apperrors.AuthenticationFailure("invalid token")
	}

	claims, err := claimsFromToken(parsed)
	if err != nil {
		return nil, err
	}
	o.cache.put(token, claims)
	return claims, nil
}
