package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultLifetime = 24 * time.Hour

var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrEmptySecret      = errors.New("token secret is empty")
)

// Claims are the identity facts carried by a token. Timestamps have second
// precision, matching the JWT NumericDate encoding.
type Claims struct {
	ID        string
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Codec mints and verifies HS256 tokens with a process-wide secret and a
// fixed lifetime.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, lifetime time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	c := &Codec{
		secret:   append([]byte(nil), secret...),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Codec) Lifetime() time.Duration { return c.lifetime }

// Issue builds claims for subject starting now and mints them.
func (c *Codec) Issue(subject, role string) (string, Claims, error) {
	now := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.lifetime),
	}
	token, err := c.Mint(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

func (c *Codec) Mint(claims Claims) (string, error) {
	jc := jwtClaims{
		Role: claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (c *Codec) ParseAndVerify(token string) (Claims, error) {
	return c.parse(token, jwt.WithExpirationRequired(), jwt.WithTimeFunc(c.now))
}

// ExpiryOf verifies the signature of token but not its expiry and returns the
// embedded expiry time.
func (c *Codec) ExpiryOf(token string) (time.Time, error) {
	claims, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt, nil
}

func (c *Codec) parse(token string, opts ...jwt.ParserOption) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMalformed
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var jc jwtClaims
	tkn, err := jwt.ParseWithClaims(token, &jc, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !tkn.Valid {
		return Claims{}, ErrMalformed
	}
	if jc.Subject == "" || jc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing sub or exp", ErrMalformed)
	}

	out := Claims{
		ID:        jc.ID,
		Subject:   jc.Subject,
		Role:      jc.Role,
		ExpiresAt: jc.ExpiresAt.Time.UTC(),
	}
	if jc.IssuedAt != nil {
		out.IssuedAt = jc.IssuedAt.Time.UTC()
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
