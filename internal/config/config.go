package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                    string   `mapstructure:"PORT"`
	Env                     string   `mapstructure:"ENV"`
	DatabaseURL             string   `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir           string   `mapstructure:"MIGRATIONS_DIR"`
	RedisURL                string   `mapstructure:"REDIS_URL"`
	AuthIssuer              string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL             string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience            string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey          string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins             []string `mapstructure:"CORS_ORIGINS"`
	HIPAAEncryptionKey      string   `mapstructure:"HIPAA_ENCRYPTION_KEY"`
	RateLimitRPS            float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst          int      `mapstructure:"RATE_LIMIT_BURST"`
	OpenAIAPIKey            string   `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL           string   `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel             string   `mapstructure:"OPENAI_MODEL"`
	InferenceTimeoutSeconds int      `mapstructure:"INFERENCE_TIMEOUT_SECONDS"`
	LogLevel                string   `mapstructure:"LOG_LEVEL"`
	LogFile                 string   `mapstructure:"LOG_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("INFERENCE_TIMEOUT_SECONDS", 60)
	v.SetDefault("LOG_LEVEL", "info")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
		"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"CORS_ORIGINS", "HIPAA_ENCRYPTION_KEY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "INFERENCE_TIMEOUT_SECONDS",
		"LOG_LEVEL", "LOG_FILE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development); all requests get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// InferenceTimeout is the deadline applied to a single call to the inference API.
func (c *Config) InferenceTimeout() time.Duration {
	if c.InferenceTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}

// EncryptionKey decodes HIPAA_ENCRYPTION_KEY. It returns nil when no key is set.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.HIPAAEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.HIPAAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("HIPAA_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token issuer or signing key must be configured, and production also
// requires an inference API key and a PHI encryption key.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() {
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in production")
		}
		if c.HIPAAEncryptionKey == "" {
			return fmt.Errorf("HIPAA_ENCRYPTION_KEY is required in production")
		}
	}
	if _, err := c.EncryptionKey(); err != nil {
		return err
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
