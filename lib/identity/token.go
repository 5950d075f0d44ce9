// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/controlcoreio/policysync/lib/component"
)

// DefaultTokenTTL is the lifetime of a token when IssueToken is called
// with a zero TTL.
const DefaultTokenTTL = 15 * time.Minute

// ClockSkew is the tolerance applied to iat/nbf/exp when verifying.
const ClockSkew = 30 * time.Second

// Errors returned by VerifyToken.
var (
	ErrMalformedToken   = errors.New("identity: malformed token")
	ErrInvalidSignature = errors.New("identity: invalid token signature")
	ErrTokenExpired     = errors.New("identity: token has expired")
	ErrTokenNotYetValid = errors.New("identity: token is not yet valid")
	ErrIssuerMismatch   = errors.New("identity: issuer does not match")
	ErrAudienceMismatch = errors.New("identity: audience does not match")
)

// Claims is the decoded content of a verified token.
type Claims struct {
	// Issuer is the component ID of the node that minted the token.
	Issuer string

	// Audience is the component type the token is scoped to.
	Audience component.Type

	// ID is unique per token, for replay detection.
	ID string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssueToken mints an RS256 token for a delivery to a component of
// type audience. A ttl of zero means DefaultTokenTTL.
func (id *Identity) IssueToken(audience component.Type, ttl time.Duration) (string, error) {
	if !audience.Valid() {
		return "", fmt.Errorf("identity: invalid audience %q", audience)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: id.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", id.componentID),
	)
	if err != nil {
		return "", fmt.Errorf("identity: creating token signer: %w", err)
	}

	now := id.clock.Now()
	claims := jwt.Claims{
		Issuer:    id.componentID,
		Audience:  jwt.Audience{string(audience)},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("identity: signing token: %w", err)
	}
	return token, nil
}

// TokenIssuer returns the unverified issuer claim of token. Receivers
// use it to choose which registered public key to verify against; the
// result must not be trusted until VerifyToken succeeds.
func TokenIssuer(token string) (string, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Issuer == "" {
		return "", fmt.Errorf("%w: missing issuer", ErrMalformedToken)
	}
	return claims.Issuer, nil
}

// Expected holds the values a token must carry to be accepted.
type Expected struct {
	Issuer   string
	Audience component.Type
	Time     time.Time
}

// VerifyToken checks the RS256 signature of token against publicKey and
// validates issuer, audience, and validity window at expected.Time.
func VerifyToken(publicKey *rsa.PublicKey, token string, expected Expected) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var claims jwt.Claims
	if err := parsed.Claims(publicKey, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Expiry == nil || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing exp or jti", ErrMalformedToken)
	}

	err = claims.ValidateWithLeeway(jwt.Expected{
		Issuer:      expected.Issuer,
		AnyAudience: jwt.Audience{string(expected.Audience)},
		Time:        expected.Time,
	}, ClockSkew)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrNotValidYet), errors.Is(err, jwt.ErrIssuedInTheFuture):
		return nil, ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return nil, fmt.Errorf("%w: got %q, want %q", ErrIssuerMismatch, claims.Issuer, expected.Issuer)
	case errors.Is(err, jwt.ErrInvalidAudience):
		return nil, fmt.Errorf("%w: got %v, want %q", ErrAudienceMismatch, []string(claims.Audience), expected.Audience)
	default:
		return nil, fmt.Errorf("identity: validating token claims: %w", err)
	}

	result := &Claims{
		Issuer:    claims.Issuer,
		Audience:  expected.Audience,
		ID:        claims.ID,
		ExpiresAt: claims.Expiry.Time(),
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time()
	}
	return result, nil
}
