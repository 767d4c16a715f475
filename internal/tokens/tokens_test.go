package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-jwt-secret-with-enough-entropy")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, 0, opts...)
	require.NoError(t, err)
	return c
}

func TestNewCodec(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(nil, time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	c, err := NewCodec(testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLifetime, c.Lifetime())

	c, err = NewCodec(testSecret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, c.Lifetime())
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	now := time.Now().UTC().Truncate(time.Second)
	claims := Claims{
		ID:        "jti-1",
		Subject:   "admin",
		Role:      "admin",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	token, err := c.Mint(claims)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	got, err := c.ParseAndVerify(token)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestCodec_Issue_SetsLifetime(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	c := newTestCodec(t, WithClock(fixedClock(start)))

	token, claims, err := c.Issue("viewer", "viewer")
	require.NoError(t, err)
	assert.Equal(t, "viewer", claims.Subject)
	assert.Equal(t, "viewer", claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, start.Truncate(time.Second), claims.IssuedAt)
	assert.Equal(t, claims.IssuedAt.Add(24*time.Hour), claims.ExpiresAt)

	got, err := c.ParseAndVerify(token)
	require.NoError(t, err)
	assert.Equal(t, claims, got)

	token2, _, err := c.Issue("viewer", "viewer")
	require.NoError(t, err)
	assert.NotEqual(t, token, token2, "tokens minted in the same second must differ")
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-48 * time.Hour)
	issuer := newTestCodec(t, WithClock(fixedClock(past)))
	token, claims, err := issuer.Issue("admin", "admin")
	require.NoError(t, err)

	verifier := newTestCodec(t)
	_, err = verifier.ParseAndVerify(token)
	assert.ErrorIs(t, err, ErrExpired)

	exp, err := verifier.ExpiryOf(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ExpiresAt, exp)
}

func TestCodec_SignatureInvalid(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	token, _, err := c.Issue("admin", "admin")
	require.NoError(t, err)

	other, err := NewCodec([]byte("another-secret-another-secret-xx"), 0)
	require.NoError(t, err)
	_, err = other.ParseAndVerify(token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	_, err = c.ParseAndVerify(tampered)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodec_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	claims := jwtClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = c.ParseAndVerify(hs512)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.ParseAndVerify(none)
	assert.Error(t, err)
}

func TestCodec_Malformed(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	for _, raw := range []string{"", "not-a-valid-jwt", "a.b.c", "Bearer x.y.z"} {
		_, err := c.ParseAndVerify(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestCodec_MissingSubjectOrExpiry(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"},
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = c.ParseAndVerify(noExp)
	assert.ErrorIs(t, err, ErrMalformed)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = c.ParseAndVerify(noSub)
	assert.ErrorIs(t, err, ErrMalformed)
}
