package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

// verifyPassword reports whether plaintext re-hashes to the stored hash. A
// malformed stored hash is a verification failure, not an error.
func verifyPassword(p, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// TokenCodec issues and verifies the signed bearer tokens. Secret, signing
// method and TTL are fixed at construction; there is no other state, so a
// single codec is shared by every request.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

func NewTokenCodec(secret, algorithm string, ttl time.Duration) (*TokenCodec, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm: %s", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %s is not an HMAC method", algorithm)
	}
	if secret == "" {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenCodec{secret: []byte(secret), method: method, ttl: ttl}, nil
}

// Issue signs a {sub, exp} claims set and returns the encoded token together
// with the absolute expiry as epoch seconds. Refreshing is just another Issue
// with a fresh now; the previous token stays valid until its own expiry.
func (c *TokenCodec) Issue(subject string, now time.Time) (string, int64, error) {
	expiresAt := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// VerifyAndDecode checks signature, structure and expiry against now. Every
// failure collapses to ErrInvalidCredentials; the claims are returned only on
// full success.
func (c *TokenCodec) VerifyAndDecode(tokenString string, now time.Time) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	// a token without an expiry claim is never acceptable
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// resolveAccount turns a bearer token into the principal account for this
// request: decode, extract the subject email, load the account. Any failure
// along the way is ErrInvalidCredentials so a caller cannot distinguish a
// forged token from a stale one or probe for registered emails. Store
// transport failures are the one exception and propagate as-is.
func (a *App) resolveAccount(ctx context.Context, tokenString string, now time.Time) (*Account, error) {
	claims, err := a.Tokens.VerifyAndDecode(tokenString, now)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := a.DB.GetAccountByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// ownsAccount is the ownership guard: a principal may mutate only its own
// account. Evaluated after authentication and before any mutation.
func ownsAccount(principal *Account, targetID int64) bool {
	return principal.ID == targetID
}
