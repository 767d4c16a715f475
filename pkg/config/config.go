package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const MinSecretLength = 32

var (
	ErrMissingSecret = errors.New("JWT_SECRET is required")
	ErrShortSecret   = fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	ErrSeedFormat    = errors.New("SEED_USERS entries must look like name:password:role")
)

type SeedUser struct {
	Username string
	Password string
	Role     string
}

type Config struct {
	ServerPort int
	LogLevel   string

	DatabaseURL string

	JWTSecret    []byte
	TokenTTL     time.Duration
	BcryptCost   int
	PasswordMin  int
	Roles        []string
	MaxAttempts  int
	Lockout      time.Duration
	SeedUsers    []SeedUser
	seedUsersErr error

	RevocationRetain     int
	RevocationSpec       string
	ThrottleSpec         string
	DetectionsSpec       string
	DetectionsRetainDays int

	KafkaBrokers []string
}

// LoadDotEnv loads .env files into the environment. A missing file is not an
// error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}
}

func Load() Config {
	seeds, seedErr := ParseSeedUsers(os.Getenv("SEED_USERS"))

	return Config{
		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: EnvDefault("DATABASE_URL", "sqlite:./detection.db"),

		JWTSecret:    []byte(os.Getenv("JWT_SECRET")),
		TokenTTL:     EnvDurationDefault("AUTH_TOKEN_TTL", 24*time.Hour),
		BcryptCost:   EnvIntDefault("AUTH_BCRYPT_COST", 0),
		PasswordMin:  EnvIntDefault("AUTH_PASSWORD_MIN", 8),
		Roles:        CSV(EnvDefault("AUTH_ROLES", "admin,viewer")),
		MaxAttempts:  EnvIntDefault("AUTH_MAX_ATTEMPTS", 5),
		Lockout:      EnvDurationDefault("AUTH_LOCKOUT", 5*time.Minute),
		SeedUsers:    seeds,
		seedUsersErr: seedErr,

		RevocationRetain:     EnvIntDefault("REVOCATION_RETAIN", 1000),
		RevocationSpec:       EnvDefault("MAINT_REVOCATION_SPEC", "@every 10m"),
		ThrottleSpec:         EnvDefault("MAINT_THROTTLE_SPEC", "@every 10m"),
		DetectionsSpec:       EnvDefault("MAINT_DETECTIONS_SPEC", "@daily"),
		DetectionsRetainDays: EnvIntDefault("DETECTIONS_RETAIN_DAYS", 30),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
	}
}

func (c Config) Validate() error {
	switch {
	case len(c.JWTSecret) == 0:
		return ErrMissingSecret
	case len(c.JWTSecret) < MinSecretLength:
		return ErrShortSecret
	}
	if c.seedUsersErr != nil {
		return c.seedUsersErr
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	return nil
}

// ParseSeedUsers reads "name:password:role" entries separated by commas. The
// password may itself contain colons; the role is taken after the last one.
func ParseSeedUsers(v string) ([]SeedUser, error) {
	var out []SeedUser
	for _, item := range CSV(v) {
		first := strings.Index(item, ":")
		last := strings.LastIndex(item, ":")
		if first <= 0 || last == first || last == len(item)-1 {
			return nil, fmt.Errorf("%w: %q", ErrSeedFormat, redact(item))
		}
		out = append(out, SeedUser{
			Username: item[:first],
			Password: item[first+1 : last],
			Role:     item[last+1:],
		})
	}
	return out, nil
}

func redact(item string) string {
	if i := strings.Index(item, ":"); i >= 0 {
		return item[:i] + ":***"
	}
	return item
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
