package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
)

// jwtClaims adapts Claims to the golang-jwt/jwt/v5 claim interface.
type jwtClaims struct {
	Claims
}

func (c jwtClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c jwtClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c jwtClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c jwtClaims) GetIssuer() (string, error)              { return c.Issuer, nil }
func (c jwtClaims) GetSubject() (string, error)              { return c.Subject.String(), nil }
func (c jwtClaims) GetAudience() (jwt.ClaimStrings, error)   { return jwt.ClaimStrings{c.Audience}, nil }

// tokenIssuer signs and parses access tokens, mirroring the original's
// jsonwebtoken::encode/decode pair with an HS256 symmetric secret
// (original_source/lims-core/auth_service/src/services.rs
// generate_jwt_token/decode_jwt_token).
type tokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

func newTokenIssuer(secret []byte, issuer, audience string) *tokenIssuer {
	return &tokenIssuer{secret: secret, issuer: issuer, audience: audience}
}

func (t *tokenIssuer) issue(claims Claims) (string, error) {
	claims.Issuer = t.issuer
	claims.Audience = t.audience

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{claims})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, nil
}

// parse decodes and validates signature, issuer, and audience, translating
// any failure into TokenInvalid/TokenExpired the way spec.md §4.2's
// validate_token contract expects.
func (t *tokenIssuer) parse(raw string) (Claims, error) {
	var claims jwtClaims

	token, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}

		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithAudience(t.audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, constant.New(constant.KindTokenExpired, "session", "access token has expired")
		}

		return Claims{}, constant.Wrap(constant.KindTokenInvalid, "session", err)
	}

	if !token.Valid {
		return Claims{}, constant.New(constant.KindTokenInvalid, "session", "token failed validation")
	}

	return claims.Claims, nil
}

// hashToken is the storage-at-rest transform for opaque tokens: only the
// hash is ever persisted, matching spec.md §3's "raw tokens never
// persist—only their hashes" and the original's hash_token (SHA-256 hex).
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// generateOpaqueToken returns a random URL-safe token with 256 bits of
// entropy, used for refresh/reset/verification tokens (spec.md §4.2:
// "random 128-bit token" for sessions; this core uses a wider 256-bit
// token uniformly since idgen.Generator.NewToken takes byte count, not
// bit count, and there's no reason to narrow it for non-session tokens).
func generateOpaqueToken(ids idgen.Generator) (string, error) {
	tok, err := ids.NewToken(32)
	if err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}

	return tok, nil
}
