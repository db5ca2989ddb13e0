package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Presence backends.
const (
	PresenceBackendRedis  = "redis"
	PresenceBackendBadger = "badger"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the gateway configuration, read from the environment.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize  int           `env:"MAX_MESSAGE_SIZE,default=4096" validate:"gt=0"`
	CallTimeout     time.Duration `env:"CALL_TIMEOUT,default=5s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5" validate:"gt=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`

	JWTSecret string `env:"JWT_SECRET" validate:"required"`
	JWTIssuer string `env:"JWT_ISSUER"`

	PresenceBackend string        `env:"PRESENCE_BACKEND,default=redis" validate:"oneof=redis badger"`
	PresencePrefix  string        `env:"PRESENCE_PREFIX,default=presence:"`
	PresenceTTL     time.Duration `env:"PRESENCE_TTL,default=0s" validate:"gte=0"`
	RedisAddr       string        `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=PresenceBackend redis"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB,default=0" validate:"gte=0"`
	BadgerPath      string        `env:"BADGER_PATH,default=data/presence" validate:"required_if=PresenceBackend badger"`

	DatabasePath    string `env:"DATABASE_PATH,default=data/chat.db" validate:"required"`
	DefaultRoomName string `env:"DEFAULT_ROOM_NAME,default=general" validate:"required,max=100"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing is set in the
// environment, except for the JWT secret which has no default.
func DefaultConfig() Config {
	return Config{
		Port:                    ":8080",
		AllowedOrigins:          "http://localhost:8080",
		MaxMessageSize:          4096,
		CallTimeout:             5 * time.Second,
		ShutdownTimeout:         15 * time.Second,
		LogLevel:                "INFO",
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
		PresenceBackend:         PresenceBackendRedis,
		PresencePrefix:          "presence:",
		RedisAddr:               "localhost:6379",
		BadgerPath:              "data/presence",
		DatabasePath:            "data/chat.db",
		DefaultRoomName:         "general",
	}
}

// LoadConfig reads the configuration from the environment, after loading
// envFiles (a missing file is not an error), and validates it.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or out-of-range settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RateLimit returns the per-connection rate limit settings.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{Burst: c.RateLimitBurst, RefillInterval: c.RateLimitRefillInterval}
}

// Origins returns the allowed origins as a list.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	return lo.Compact(lo.Map(strings.Split(origins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	}))
}
