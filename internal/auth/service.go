package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/detection_backend/internal/events"
	"github.com/Skotchmaster/detection_backend/internal/hash"
	"github.com/Skotchmaster/detection_backend/internal/metrics"
	"github.com/Skotchmaster/detection_backend/internal/revocation"
	"github.com/Skotchmaster/detection_backend/internal/throttle"
	"github.com/Skotchmaster/detection_backend/internal/tokens"
	"github.com/Skotchmaster/detection_backend/internal/users"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
)

type Deps struct {
	Users    *users.Store
	Hasher   *hash.Hasher
	Tokens   *tokens.Codec
	Revoked  *revocation.Registry
	Throttle *throttle.Throttle
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

// Service answers the three session questions: may this login proceed, is
// this token usable and as whom, and may this identity act.
type Service struct {
	users    *users.Store
	hasher   *hash.Hasher
	tokens   *tokens.Codec
	revoked  *revocation.Registry
	throttle *throttle.Throttle
	events   events.Publisher
	metrics  *metrics.Metrics
}

func New(d Deps) *Service {
	pub := d.Events
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		revoked:  d.Revoked,
		throttle: d.Throttle,
		events:   pub,
		metrics:  d.Metrics,
	}
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	Role      users.Role
}

func (s *Service) Login(ctx context.Context, username, password, clientKey string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username, "client", clientKey)

	policy := s.users.Policy()
	if username == "" || password == "" || utf8.RuneCountInString(username) > policy.UsernameMax || len(password) > policy.PasswordMax {
		s.metrics.LoginAttempt("invalid_input")
		l.Warn("login_failed", "reason", ReasonInvalidInput.String())
		return nil, reject(ReasonInvalidInput, errors.New("username and password are required"))
	}

	decision := s.throttle.Check(clientKey)

	// One comparison on every path so the response time does not reveal
	// whether the key was locked or the user existed.
	user, lookupErr := s.users.Lookup(username)
	verifier := s.hasher.DummyVerifier()
	if lookupErr == nil {
		verifier = user.PasswordHash
	}
	matched := s.hasher.Matches(password, verifier)

	var (
		reason Reason
		detail string
	)
	switch {
	case decision == throttle.Locked:
		reason, detail = ReasonLocked, "too many failed attempts"
	case lookupErr != nil:
		reason, detail = ReasonInvalidCredentials, "user not found"
	case !user.Active:
		reason, detail = ReasonInvalidCredentials, "user inactive"
	case !matched:
		reason, detail = ReasonInvalidCredentials, "wrong password"
	}

	if reason != 0 {
		if reason != ReasonLocked && s.throttle.RecordFailure(clientKey) == throttle.Locked {
			l.Warn("client_locked", "lockout", s.throttle.Config().Lockout.String())
		}
		s.metrics.LoginAttempt("rejected")
		s.metrics.AuthFailure(reason.String())
		s.metrics.SetThrottledClients(s.throttle.Len())
		l.Warn("login_failed", "reason", reason.String(), "detail", detail)
		return nil, reject(reason, errors.New(detail))
	}

	s.throttle.Reset(clientKey)

	token, claims, err := s.tokens.Issue(user.Username, string(user.Role))
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue token", "error", err)
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.LoginAttempt("success")
	s.publish(ctx, events.TopicUser, user.Username, events.UserEvent{
		Type:     events.TypeUserLoggedIn,
		Username: user.Username,
		Role:     string(user.Role),
		At:       claims.IssuedAt,
	})
	l.Info("login_successful", "role", user.Role)

	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Username:  user.Username,
		Role:      user.Role,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, token string) (tokens.Claims, error) {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate")

	claims, err := s.authenticate(token)
	if err != nil {
		reason := ReasonOf(err)
		s.metrics.AuthFailure(reason.String())
		l.Warn("authenticate_failed", "reason", reason.String(), "subject", claims.Subject)
		return tokens.Claims{}, err
	}
	return claims, nil
}

func (s *Service) authenticate(token string) (tokens.Claims, error) {
	if token == "" {
		return tokens.Claims{}, reject(ReasonMalformed, errors.New("empty token"))
	}
	if s.revoked.IsRevoked(token) {
		return tokens.Claims{}, reject(ReasonRevoked, nil)
	}

	claims, err := s.tokens.ParseAndVerify(token)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrExpired):
			return tokens.Claims{}, reject(ReasonExpired, err)
		case errors.Is(err, tokens.ErrSignatureInvalid):
			return tokens.Claims{}, reject(ReasonSignatureInvalid, err)
		default:
			return tokens.Claims{}, reject(ReasonMalformed, err)
		}
	}

	user, err := s.users.Lookup(claims.Subject)
	if err != nil {
		return claims, reject(ReasonUserNotFound, err)
	}
	if !user.Active {
		return claims, reject(ReasonUserInactive, nil)
	}
	return claims, nil
}

// Authorize lets admin through for any requirement; every other role must
// match the requirement exactly.
func (s *Service) Authorize(claims tokens.Claims, required users.Role) error {
	role := users.Role(claims.Role)
	if role == users.RoleAdmin || role == required {
		return nil
	}
	return reject(ReasonForbidden, fmt.Errorf("role %q does not satisfy %q", role, required))
}

// Logout revokes token. It always succeeds; tokens whose signature does not
// verify cannot authenticate anyway and are not stored.
func (s *Service) Logout(ctx context.Context, token string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")
	if token == "" {
		return nil
	}

	exp, err := s.tokens.ExpiryOf(token)
	if err != nil {
		l.Debug("logout_ignored", "reason", "token does not verify", "error", err)
		return nil
	}

	s.revoked.Revoke(token, exp)
	s.metrics.SetRevokedTokens(s.revoked.Len())
	l.Info("token_revoked")
	return nil
}

func (s *Service) CreateUser(ctx context.Context, username, password string, role users.Role) (users.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.create_user", "username", username)

	u, err := s.users.Create(username, password, role)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateUser):
			l.Warn("create_user_failed", "reason", "user already exist")
			return users.User{}, reject(ReasonDuplicateUser, err)
		case errors.Is(err, users.ErrInvalidInput):
			l.Warn("create_user_failed", "reason", "invalid input", "error", err)
			return users.User{}, reject(ReasonInvalidInput, err)
		default:
			l.Error("create_user_failed", "error", err)
			return users.User{}, err
		}
	}

	s.publish(ctx, events.TopicUser, u.Username, events.UserEvent{
		Type:     events.TypeUserCreated,
		Username: u.Username,
		Role:     string(u.Role),
		At:       time.Now().UTC(),
	})
	l.Info("user_created", "role", u.Role)
	return u, nil
}

func (s *Service) DeactivateUser(ctx context.Context, username string) error {
	l := logging.FromContext(ctx).With("svc", "auth.deactivate_user", "username", username)

	if err := s.users.Deactivate(username); err != nil {
		l.Warn("deactivate_user_failed", "reason", "user not found")
		return reject(ReasonNotFound, err)
	}

	s.publish(ctx, events.TopicUser, username, events.UserEvent{
		Type:     events.TypeUserDeactivated,
		Username: username,
		At:       time.Now().UTC(),
	})
	l.Warn("user_deactivated")
	return nil
}

func (s *Service) ListUsers() []users.User {
	return s.users.List()
}

// ChangePassword replaces the verifier of username after checking the
// current password. Wrong current passwords are throttled per user, so a
// stolen token cannot be used to guess the password.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "username", username)

	key := passwordChangeKey(username)
	decision := s.throttle.Check(key)

	user, err := s.users.Lookup(username)
	verifier := s.hasher.DummyVerifier()
	if err == nil {
		verifier = user.PasswordHash
	}
	matched := s.hasher.Matches(current, verifier)

	switch {
	case decision == throttle.Locked:
		s.metrics.AuthFailure(ReasonLocked.String())
		l.Warn("change_password_failed", "reason", ReasonLocked.String())
		return reject(ReasonLocked, errors.New("too many failed attempts"))
	case err != nil || !matched:
		if s.throttle.RecordFailure(key) == throttle.Locked {
			l.Warn("password_change_locked", "lockout", s.throttle.Config().Lockout.String())
		}
		s.metrics.AuthFailure(ReasonInvalidCredentials.String())
		s.metrics.SetThrottledClients(s.throttle.Len())
		l.Warn("change_password_failed", "reason", ReasonInvalidCredentials.String())
		return reject(ReasonInvalidCredentials, errors.New("current password mismatch"))
	}
	s.throttle.Reset(key)

	if err := s.users.UpdatePassword(username, next); err != nil {
		if errors.Is(err, users.ErrInvalidInput) {
			l.Warn("change_password_failed", "reason", "invalid input", "error", err)
			return reject(ReasonInvalidInput, err)
		}
		if errors.Is(err, users.ErrNotFound) {
			return reject(ReasonNotFound, err)
		}
		l.Error("change_password_failed", "error", err)
		return err
	}

	s.publish(ctx, events.TopicUser, username, events.UserEvent{
		Type:     events.TypePasswordChanged,
		Username: username,
		At:       time.Now().UTC(),
	})
	l.Info("password_changed")
	return nil
}

// CompactRevocations is the periodic maintenance hook for the revocation
// registry. It returns the number of entries removed.
func (s *Service) CompactRevocations(retain int) int {
	removed := s.revoked.Compact(retain)
	s.metrics.SetRevokedTokens(s.revoked.Len())
	return removed
}

// SweepThrottle drops lapsed throttle entries.
func (s *Service) SweepThrottle() int {
	removed := s.throttle.Sweep()
	s.metrics.SetThrottledClients(s.throttle.Len())
	return removed
}

func passwordChangeKey(username string) string {
	return "password:" + username
}

func (s *Service) publish(ctx context.Context, topic, key string, event any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.events.Publish(pubCtx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "topic", topic, "error", err)
	}
}
