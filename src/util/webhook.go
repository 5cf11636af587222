package util

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
)

// Verification follows https://plaid.com/docs/api/webhooks/webhook-verification/

const VerificationHeader = "Plaid-Verification"

var ErrWebhookUnverified = errors.New("webhook verification failed")

// KeyFetcher returns the public key for a key id.
type KeyFetcher interface {
	WebhookVerificationKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)
}

// WebhookVerifier checks the signed JWT that accompanies bank webhooks. Keys are
// cached by kid.
type WebhookVerifier struct {
	fetcher KeyFetcher
	maxAge  time.Duration
	now     func() time.Time

	mu   sync.RWMutex
	keys map[string]*ecdsa.PublicKey
}

func NewWebhookVerifier(fetcher KeyFetcher) *WebhookVerifier {
	return &WebhookVerifier{
		fetcher: fetcher,
		maxAge:  5 * time.Minute,
		now:     time.Now,
		keys:    make(map[string]*ecdsa.PublicKey),
	}
}

func jwkToECDSAPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.X == "" || jwk.Y == "" ||
		jwk.Kty != "EC" ||
		jwk.Crv != "P-256" {
		return nil, errors.New("invalid/unsupported JWK")
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// Verify checks the token's signature, its age and that it was issued for body.
func (v *WebhookVerifier) Verify(ctx context.Context, body []byte, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing %s header", ErrWebhookUnverified, VerificationHeader)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(v.now),
	)

	// Decode JWT header (unverified) to extract kid
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("%w: parse token: %v", ErrWebhookUnverified, err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("%w: unexpected alg %q", ErrWebhookUnverified, unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return fmt.Errorf("%w: missing kid", ErrWebhookUnverified)
	}

	pubKey, err := v.key(ctx, kid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookUnverified, err)
	}

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return pubKey, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: invalid token: %v", ErrWebhookUnverified, err)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return fmt.Errorf("%w: missing iat", ErrWebhookUnverified)
	}
	if v.now().Sub(iat.Time) > v.maxAge {
		return fmt.Errorf("%w: token older than %s", ErrWebhookUnverified, v.maxAge)
	}

	wantHash, ok := claims["request_body_sha256"].(string)
	if !ok || wantHash == "" {
		return fmt.Errorf("%w: missing request_body_sha256", ErrWebhookUnverified)
	}
	sum := sha256.Sum256(body)
	gotHex := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(wantHash))) != 1 {
		return fmt.Errorf("%w: body hash mismatch", ErrWebhookUnverified)
	}
	return nil
}

func (v *WebhookVerifier) key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return k, nil
	}

	jwk, err := v.fetcher.WebhookVerificationKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("get JWK: %w", err)
	}
	k, err = jwkToECDSAPublicKey(jwk)
	if err != nil {
		return nil, err
	}
	if jwk.Kid == kid {
		v.mu.Lock()
		v.keys[kid] = k
		v.mu.Unlock()
	}
	return k, nil
}
