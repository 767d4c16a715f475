package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/Skotchmaster/detection_backend/internal/hash"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrDuplicateUser = errors.New("user already exist")
	ErrNotFound      = errors.New("user not found")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Active       bool   `json:"active"`
}

// Policy holds the credential rules applied on creation and password change.
type Policy struct {
	UsernameMin int
	UsernameMax int
	PasswordMin int
	PasswordMax int
	Roles       []Role
}

func DefaultPolicy() Policy {
	return Policy{
		UsernameMin: 3,
		UsernameMax: 50,
		PasswordMin: 8,
		PasswordMax: 72,
		Roles:       []Role{RoleAdmin, RoleViewer},
	}
}

func (p Policy) RoleAllowed(r Role) bool {
	if r == RoleAdmin {
		return true
	}
	for _, allowed := range p.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

func (p Policy) ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < p.UsernameMin || n > p.UsernameMax {
		return fmt.Errorf("%w: username must contain between %d and %d characters", ErrInvalidInput, p.UsernameMin, p.UsernameMax)
	}
	return nil
}

func (p Policy) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < p.PasswordMin {
		return fmt.Errorf("%w: password must contain at least %d characters", ErrInvalidInput, p.PasswordMin)
	}
	if len(password) > p.PasswordMax {
		return fmt.Errorf("%w: password must not exceed %d bytes", ErrInvalidInput, p.PasswordMax)
	}
	return nil
}

// Store is the in-memory credential registry. Reads share the lock, writes
// take it exclusively; verifiers are always computed before locking.
type Store struct {
	mu     sync.RWMutex
	users  map[string]User
	hasher *hash.Hasher
	policy Policy
}

func NewStore(hasher *hash.Hasher, policy Policy) *Store {
	return &Store{
		users:  make(map[string]User),
		hasher: hasher,
		policy: policy,
	}
}

func (s *Store) Policy() Policy { return s.policy }

func (s *Store) Lookup(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Store) VerifyActive(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	return ok && u.Active
}

func (s *Store) Create(username, password string, role Role) (User, error) {
	if err := s.policy.ValidateUsername(username); err != nil {
		return User{}, err
	}
	if err := s.policy.ValidatePassword(password); err != nil {
		return User{}, err
	}
	if !s.policy.RoleAllowed(role) {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	// cheap pre-check so duplicates don't pay for a hash
	if _, err := s.Lookup(username); err == nil {
		return User{}, ErrDuplicateUser
	}

	verifier, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return User{}, ErrDuplicateUser
	}
	u := User{
		Username:     username,
		PasswordHash: verifier,
		Role:         role,
		Active:       true,
	}
	s.users[username] = u
	return u, nil
}

func (s *Store) Deactivate(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.Active = false
	s.users[username] = u
	return nil
}

func (s *Store) UpdatePassword(username, password string) error {
	if err := s.policy.ValidatePassword(password); err != nil {
		return err
	}
	if _, err := s.Lookup(username); err != nil {
		return err
	}

	verifier, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = verifier
	s.users[username] = u
	return nil
}

// List returns a snapshot of all users ordered by username.
func (s *Store) List() []User {
	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

type SeedUser struct {
	Username string
	Password string
	Role     Role
}

// Seed creates the start-up users. Users that already exist are skipped.
func (s *Store) Seed(ctx context.Context, seeds []SeedUser) error {
	l := logging.FromContext(ctx).With("svc", "users.seed")
	for _, su := range seeds {
		if _, err := s.Create(su.Username, su.Password, su.Role); err != nil {
			if errors.Is(err, ErrDuplicateUser) {
				l.Warn("seed_skipped", "username", su.Username, "reason", "user already exist")
				continue
			}
			return fmt.Errorf("seed user %q: %w", su.Username, err)
		}
		l.Info("seed_user_created", "username", su.Username, "role", su.Role)
	}
	return nil
}
