package hash

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var dummyPassword = []byte("dummy-password-for-timing")

type generateFunc func(password []byte, cost int) ([]byte, error)

// Hasher produces and checks bcrypt password verifiers at a fixed cost.
type Hasher struct {
	Cost int

	generate generateFunc
	mu       sync.Mutex
	dummy    string
}

func New(cost int) *Hasher {
	return newHasher(cost, bcrypt.GenerateFromPassword)
}

func newHasher(cost int, generate generateFunc) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h := &Hasher{Cost: cost, generate: generate}
	h.dummy = h.newDummy()
	return h
}

// newDummy falls back to the default cost so unknown users are never
// compared against an empty verifier.
func (h *Hasher) newDummy() string {
	v, err := h.generate(dummyPassword, h.Cost)
	if err != nil {
		v, err = h.generate(dummyPassword, bcrypt.DefaultCost)
	}
	if err != nil {
		return ""
	}
	return string(v)
}

func (h *Hasher) Hash(password string) (string, error) {
	hashbytes, err := h.generate([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hashbytes), nil
}

func (h *Hasher) Matches(password, verifier string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(password)) == nil
}

// DummyVerifier is a valid verifier that no real password is expected to
// match. Comparing against it costs the same as a real comparison.
func (h *Hasher) DummyVerifier() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dummy == "" {
		h.dummy = h.newDummy()
	}
	return h.dummy
}
