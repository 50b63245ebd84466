package authcore

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/authcore/password"
)

// Config is the complete engine configuration.
//
// Config values are copied into the engine at Build time; later changes to
// the caller's copy have no effect.
type Config struct {
	Lock         LockConfig         `toml:"lock"`
	Session      SessionConfig      `toml:"session"`
	Password     PasswordConfig     `toml:"password"`
	Verification VerificationConfig `toml:"verification"`
	Audit        AuditConfig        `toml:"audit"`
	Metrics      MetricsConfig      `toml:"metrics"`
}

/*
====================================
LOCKOUT
====================================
*/

// LockConfig controls automatic lockout after repeated failures.
type LockConfig struct {
	// MaxAttempts is the number of consecutive failures that engages a lock.
	MaxAttempts int           `toml:"max_attempts"`
	Timeout     time.Duration `toml:"timeout"`
}

// SessionConfig controls AuthSession behavior.
type SessionConfig struct {
	// LoginField names the credentials-map key used as the attempt identifier.
	LoginField          string `toml:"login_field"`
	RememberTokenLength int    `toml:"remember_token_length"`
	// AuditRememberToken emits a LoginAttemptEvent for remember-token sign-ins.
	AuditRememberToken bool `toml:"audit_remember_token"`
}

// PasswordConfig holds Argon2id parameters.
type PasswordConfig struct {
	Memory           uint32 `toml:"memory"` // in KB
	Time             uint32 `toml:"time"`
	Parallelism      uint8  `toml:"parallelism"`
	SaltLength       uint32 `toml:"salt_length"`
	KeyLength        uint32 `toml:"key_length"`
	MaxPasswordBytes int    `toml:"max_password_bytes"`
	UpgradeOnLogin   bool   `toml:"upgrade_on_login"`
}

// VerificationConfig controls account verification tokens and links.
type VerificationConfig struct {
	TokenTTL time.Duration `toml:"token_ttl"`
	// LinkBaseURL and LinkSigningKey enable signed "weburl" links. Both or neither.
	LinkBaseURL    string `toml:"link_base_url"`
	LinkSigningKey string `toml:"link_signing_key"`
	LinkIssuer     string `toml:"link_issuer"`
	// MaxAttempts bounds Issue and Verify calls per account within
	// AttemptWindow when an AttemptLimiter is configured. 0 disables.
	MaxAttempts   int           `toml:"max_attempts"`
	AttemptWindow time.Duration `toml:"attempt_window"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

const (
	defaultMaxAttempts         = 5
	defaultLockTimeout         = 60 * time.Minute
	defaultLoginField          = "username"
	defaultRememberTokenLength = 60
	defaultVerificationTTL     = 24 * time.Hour
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Lock: LockConfig{
			MaxAttempts: defaultMaxAttempts,
			Timeout:     defaultLockTimeout,
		},
		Session: SessionConfig{
			LoginField:          defaultLoginField,
			RememberTokenLength: defaultRememberTokenLength,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			TokenTTL: defaultVerificationTTL,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfigFile decodes a TOML file over DefaultConfig and validates the result.
// Durations are written as strings such as "60m".
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		return Config{}, fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PasswordHasherConfig converts the password section into argon2 parameters.
func (c Config) PasswordHasherConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Lock.MaxAttempts < 1 {
		return errors.New("Lock MaxAttempts must be >= 1")
	}
	if c.Lock.Timeout <= 0 {
		return errors.New("Lock Timeout must be > 0")
	}

	if strings.TrimSpace(c.Session.LoginField) == "" {
		return errors.New("Session LoginField must not be empty")
	}
	if c.Session.RememberTokenLength < defaultRememberTokenLength {
		return fmt.Errorf("Session RememberTokenLength must be >= %d", defaultRememberTokenLength)
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if (c.Verification.LinkBaseURL == "") != (c.Verification.LinkSigningKey == "") {
		return errors.New("Verification LinkBaseURL and LinkSigningKey must be set together")
	}
	if c.Verification.LinkSigningKey != "" && len(c.Verification.LinkSigningKey) < 32 {
		return errors.New("Verification LinkSigningKey must be at least 32 bytes")
	}

	if c.Verification.MaxAttempts < 0 {
		return errors.New("Verification MaxAttempts must be >= 0")
	}
	if c.Verification.MaxAttempts > 0 && c.Verification.AttemptWindow <= 0 {
		return errors.New("Verification AttemptWindow must be > 0 when MaxAttempts is set")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
