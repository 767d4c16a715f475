package hash

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndMatch(t *testing.T) {
	t.Parallel()

	h := New(bcrypt.MinCost)
	verifier, err := h.Hash("Admin123!")
	require.NoError(t, err)

	assert.NotEqual(t, "Admin123!", verifier)
	assert.True(t, strings.HasPrefix(verifier, "$2a$"))
	assert.True(t, h.Matches("Admin123!", verifier))
	assert.False(t, h.Matches("admin123!", verifier))
	assert.False(t, h.Matches("Admin123!", "not-a-bcrypt-hash"))
}

func TestHasher_Salted(t *testing.T) {
	t.Parallel()

	h := New(bcrypt.MinCost)
	a, err := h.Hash("Viewer123!")
	require.NoError(t, err)
	b, err := h.Hash("Viewer123!")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHasher_CostFallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, New(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, New(99).Cost)
	assert.Equal(t, 12, New(12).Cost)
}

func TestHasher_DummyVerifier(t *testing.T) {
	t.Parallel()

	h := New(bcrypt.MinCost)
	d := h.DummyVerifier()
	require.NotEmpty(t, d)
	assert.Equal(t, d, h.DummyVerifier())

	cost, err := bcrypt.Cost([]byte(d))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.False(t, h.Matches("Admin123!", d))
}

func TestHasher_RejectsOverlongPassword(t *testing.T) {
	t.Parallel()

	_, err := New(bcrypt.MinCost).Hash(strings.Repeat("x", 73))
	require.Error(t, err)
}

func TestHasher_DummyVerifierFallsBackToDefaultCost(t *testing.T) {
	t.Parallel()

	gen := func(password []byte, cost int) ([]byte, error) {
		if cost != bcrypt.DefaultCost {
			return nil, errors.New("entropy unavailable")
		}
		return bcrypt.GenerateFromPassword(password, cost)
	}

	h := newHasher(bcrypt.MinCost, gen)
	d := h.DummyVerifier()
	require.NotEmpty(t, d)

	cost, err := bcrypt.Cost([]byte(d))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestHasher_DummyVerifierRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	fail := true
	gen := func(password []byte, cost int) ([]byte, error) {
		if fail {
			return nil, errors.New("entropy unavailable")
		}
		return bcrypt.GenerateFromPassword(password, cost)
	}

	h := newHasher(bcrypt.MinCost, gen)
	fail = false
	assert.NotEmpty(t, h.DummyVerifier())
}
