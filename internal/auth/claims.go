// Package auth decodes the inbound bearer token into Claims and makes it
// available to handlers. Verifying the issuing authority's own session and
// entitlement internals is out of scope; only the Claims contract is consumed.
package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// ServiceScope enumerates the two service scopes a claim may carry.
type ServiceScope string

const (
	ServiceScopeREG ServiceScope = "reg"
	ServiceScopeRRS ServiceScope = "rrs"
)

// Claims is the authenticated identity attached to every request. It is the
// input to every operation below the HTTP layer: the claim triple
// (TenantID, InstanceID, Source) must equal the corresponding fields on every
// scoped object an operation touches.
type Claims struct {
	TenantID     string       `json:"tenant_id"`
	InstanceID   string       `json:"instance_id"`
	Source       string       `json:"source"`
	ServiceScope ServiceScope `json:"service_scope"`
	IssuedAt     time.Time    `json:"iat"`
	ExpiresAt    time.Time    `json:"exp"`
	JTI          string       `json:"jti"`
	Issuer       string       `json:"iss"`
	Subject      string       `json:"sub"`
	Audience     string       `json:"aud"`
}

// rawClaims mirrors the JWT's numeric-date encoding before conversion to Claims.
type rawClaims struct {
	TenantID     string       `json:"tenant_id"`
	InstanceID   string       `json:"instance_id"`
	Source       string       `json:"source"`
	ServiceScope ServiceScope `json:"service_scope"`
	IssuedAt     int64        `json:"iat"`
	ExpiresAt    int64        `json:"exp"`
	JTI          string       `json:"jti"`
	Issuer       string       `json:"iss"`
	Subject      string       `json:"sub"`
	Audience     string       `json:"aud"`
}

// ClaimsVerifier decodes and verifies a bearer token into Claims using an
// HMAC-signed JWT. The signing key is provisioned out-of-band by the issuing
// authority; this verifier only checks the signature, expiry, issuer, and
// audience before trusting the embedded claim triple.
type ClaimsVerifier struct {
	key              []byte
	expectedIssuer   string
	expectedAudience string
}

// NewClaimsVerifier creates a verifier from a hex-encoded HMAC key.
func NewClaimsVerifier(keyHex, expectedIssuer, expectedAudience string) (*ClaimsVerifier, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding claims verification key: %w", err)
	}
	return &ClaimsVerifier{key: key, expectedIssuer: expectedIssuer, expectedAudience: expectedAudience}, nil
}

// Verify parses and validates a bearer token, returning the embedded Claims.
func (v *ClaimsVerifier) Verify(token string) (*Claims, error) {
	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing bearer token: %w", err)
	}

	var raw rawClaims
	if err := tok.Claims(v.key, &raw); err != nil {
		return nil, fmt.Errorf("verifying bearer token signature: %w", err)
	}

	claims := &Claims{
		TenantID:     raw.TenantID,
		InstanceID:   raw.InstanceID,
		Source:       raw.Source,
		ServiceScope: raw.ServiceScope,
		IssuedAt:     time.Unix(raw.IssuedAt, 0).UTC(),
		ExpiresAt:    time.Unix(raw.ExpiresAt, 0).UTC(),
		JTI:          raw.JTI,
		Issuer:       raw.Issuer,
		Subject:      raw.Subject,
		Audience:     raw.Audience,
	}

	if time.Now().After(claims.ExpiresAt) {
		return nil, fmt.Errorf("bearer token expired at %s", claims.ExpiresAt)
	}
	if v.expectedIssuer != "" && claims.Issuer != v.expectedIssuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if v.expectedAudience != "" && claims.Audience != v.expectedAudience {
		return nil, fmt.Errorf("unexpected audience %q", claims.Audience)
	}

	return claims, nil
}

type ctxKeyClaims struct{}

// NewContext returns a context carrying the given Claims.
func NewContext(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims{}, c)
}

// FromContext returns the Claims stored on the context, or nil if absent.
func FromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKeyClaims{}).(*Claims)
	return c
}
