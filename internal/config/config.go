package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Storage
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/dispomail.db"`

	// Address generation
	MailDomain string `env:"MAIL_DOMAIN,required"` // domain suffix for generated addresses

	// Verification backend: tempapi, imap or pop3
	VerifyMethod string `env:"VERIFY_METHOD" envDefault:"tempapi"`

	// Ephemeral mailbox API
	TempAPIBaseURL string        `env:"TEMPAPI_BASE_URL" envDefault:"https://tempmail.plus"`
	TempAPIPin     string        `env:"TEMPAPI_PIN"`
	TempAPITimeout time.Duration `env:"TEMPAPI_TIMEOUT" envDefault:"30s"`

	// IMAP backend
	IMAPHost     string        `env:"IMAP_HOST"`
	IMAPPort     int           `env:"IMAP_PORT" envDefault:"993"`
	IMAPUsername string        `env:"IMAP_USERNAME"`
	IMAPPassword string        `env:"IMAP_PASSWORD"`
	IMAPUseTLS   bool          `env:"IMAP_TLS" envDefault:"true"`
	IMAPFolder   string        `env:"IMAP_FOLDER" envDefault:"INBOX"`
	IMAPTimeout  time.Duration `env:"IMAP_TIMEOUT" envDefault:"30s"`

	// POP3 backend
	POP3Host            string        `env:"POP3_HOST"`
	POP3Port            int           `env:"POP3_PORT" envDefault:"995"`
	POP3Username        string        `env:"POP3_USERNAME"`
	POP3Password        string        `env:"POP3_PASSWORD"`
	POP3UseTLS          bool          `env:"POP3_TLS" envDefault:"true"`
	POP3Timeout         time.Duration `env:"POP3_TIMEOUT" envDefault:"30s"`
	POP3ExpectedSender  string        `env:"POP3_EXPECTED_SENDER"`
	POP3DeleteAfterRead bool          `env:"POP3_DELETE_AFTER_READ"`

	// Verification loop
	VerifyMaxAttempts int           `env:"VERIFY_MAX_ATTEMPTS" envDefault:"5"`
	VerifyInterval    time.Duration `env:"VERIFY_INTERVAL" envDefault:"60s"`
	VerifyPollDelay   time.Duration `env:"VERIFY_POLL_DELAY" envDefault:"3s"`
	VerifyPollLimit   int           `env:"VERIFY_POLL_LIMIT" envDefault:"20"`

	// Expiry policy applied by the expire command
	ExpireMaxAttempts int           `env:"EXPIRE_MAX_ATTEMPTS" envDefault:"15"`
	ExpireMaxAge      time.Duration `env:"EXPIRE_MAX_AGE" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.VerifyMethod {
	case "tempapi", "imap", "pop3":
	default:
		return nil, fmt.Errorf("VERIFY_METHOD must be tempapi, imap or pop3, got %q", cfg.VerifyMethod)
	}
	if cfg.VerifyMaxAttempts <= 0 {
		return nil, fmt.Errorf("VERIFY_MAX_ATTEMPTS must be positive, got %d", cfg.VerifyMaxAttempts)
	}
	if cfg.VerifyPollLimit <= 0 {
		return nil, fmt.Errorf("VERIFY_POLL_LIMIT must be positive, got %d", cfg.VerifyPollLimit)
	}

	return cfg, nil
}
