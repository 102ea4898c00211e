package main

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T, ttl time.Duration) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", "HS256", ttl)
	require.NoError(t, err)
	return codec
}

func TestHashPasswordRoundTrip(t *testing.T) {
	plaintexts := []string{
		"123456@asdfgh",
		"correct horse battery staple",
		"päsßwörd-mit-umlauten",
	}
	for _, p := range plaintexts {
		hash, err := hashPassword(p)
		require.NoError(t, err)
		require.NotEqual(t, p, hash)
		require.True(t, verifyPassword(p, hash))
		require.False(t, verifyPassword(p+"x", hash))
	}
}

func TestHashPasswordSaltIsRandom(t *testing.T) {
	h1, err := hashPassword("123456@asdfgh")
	require.NoError(t, err)
	h2, err := hashPassword("123456@asdfgh")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	require.False(t, verifyPassword("anything", "not-a-bcrypt-hash"))
	require.False(t, verifyPassword("anything", ""))
}

func TestNewTokenCodecRejectsBadConfig(t *testing.T) {
	_, err := NewTokenCodec("secret", "none", time.Minute)
	require.Error(t, err)
	_, err = NewTokenCodec("secret", "RS256", time.Minute)
	require.Error(t, err)
	_, err = NewTokenCodec("", "HS256", time.Minute)
	require.Error(t, err)
	_, err = NewTokenCodec("secret", "HS256", 0)
	require.Error(t, err)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	codec := testCodec(t, 300*time.Second)
	now := time.Unix(1752148800, 0)

	token, expiresAt, err := codec.Issue("a@x.com", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(300*time.Second).Unix(), expiresAt)

	claims, err := codec.VerifyAndDecode(token, now)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", claims.Subject)
	require.Equal(t, expiresAt, claims.ExpiresAt.Unix())
}

func TestVerifyExpiryBoundary(t *testing.T) {
	codec := testCodec(t, 300*time.Second)
	now := time.Unix(1752148800, 0)

	token, _, err := codec.Issue("a@x.com", now)
	require.NoError(t, err)

	_, err = codec.VerifyAndDecode(token, now.Add(299*time.Second))
	require.NoError(t, err)

	_, err = codec.VerifyAndDecode(token, now.Add(301*time.Second))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// exp at or before now is expired
	_, err = codec.VerifyAndDecode(token, now.Add(300*time.Second))
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyMalformedTokens(t *testing.T) {
	codec := testCodec(t, time.Minute)
	now := time.Now()

	for _, bad := range []string{"", "token", "a.b", "a.b.c", "ey.ey.ey", "....."} {
		_, err := codec.VerifyAndDecode(bad, now)
		require.ErrorIs(t, err, ErrInvalidCredentials, "token %q", bad)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	codec := testCodec(t, time.Minute)
	other, err := NewTokenCodec("other-secret", "HS256", time.Minute)
	require.NoError(t, err)

	now := time.Now()
	token, _, err := codec.Issue("a@x.com", now)
	require.NoError(t, err)

	_, err = other.VerifyAndDecode(token, now)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	codec := testCodec(t, time.Minute)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "a@x.com"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.VerifyAndDecode(raw, time.Now())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshIssuesIndependentExpiry(t *testing.T) {
	codec := testCodec(t, 300*time.Second)
	t0 := time.Unix(1752148800, 0)

	first, firstExp, err := codec.Issue("a@x.com", t0)
	require.NoError(t, err)

	// re-issue 290s later from the same subject
	t1 := t0.Add(290 * time.Second)
	second, secondExp, err := codec.Issue("a@x.com", t1)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, t1.Add(300*time.Second).Unix(), secondExp)
	require.Greater(t, secondExp, firstExp)

	// the original token still verifies until its own expiry
	_, err = codec.VerifyAndDecode(first, t0.Add(299*time.Second))
	require.NoError(t, err)
}

func TestResolveAccount(t *testing.T) {
	db := NewMemoryDB()
	codec := testCodec(t, 300*time.Second)
	app := &App{DB: db, Tokens: codec}
	ctx := context.Background()

	account, err := db.CreateAccount(ctx, &Account{
		Username: "diego", Email: "diego@email.com", Password: "irrelevant",
	})
	require.NoError(t, err)

	now := time.Now()
	token, _, err := codec.Issue(account.Email, now)
	require.NoError(t, err)

	resolved, err := app.resolveAccount(ctx, token, now)
	require.NoError(t, err)
	require.Equal(t, account.ID, resolved.ID)
	require.Equal(t, account.Email, resolved.Email)
}

func TestResolveAccountUniformFailures(t *testing.T) {
	db := NewMemoryDB()
	codec := testCodec(t, 300*time.Second)
	app := &App{DB: db, Tokens: codec}
	ctx := context.Background()
	now := time.Now()

	// malformed
	_, err := app.resolveAccount(ctx, "token", now)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// expired
	expired, _, err := codec.Issue("a@x.com", now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = app.resolveAccount(ctx, expired, now)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// empty subject
	empty, _, err := codec.Issue("", now)
	require.NoError(t, err)
	_, err = app.resolveAccount(ctx, empty, now)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// valid token whose subject matches no account
	ghost, _, err := codec.Issue("ghost@x.com", now)
	require.NoError(t, err)
	_, err = app.resolveAccount(ctx, ghost, now)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOwnsAccount(t *testing.T) {
	principal := &Account{ID: 5}
	require.True(t, ownsAccount(principal, 5))
	require.False(t, ownsAccount(principal, 7))
	require.False(t, ownsAccount(principal, 0))
	require.False(t, ownsAccount(principal, -5))
}
