package hubauth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds every tunable of the authority. Obtain one from DefaultConfig,
// adjust fields, and hand it to Builder.WithConfig. The Engine keeps its own
// copy; later changes to the caller's value have no effect.
type Config struct {
	Session   SessionConfig
	Password  PasswordConfig
	Security  SecurityConfig
	Bans      BanConfig
	Storage   StorageConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Bootstrap BootstrapConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls issued session secrets.
type SessionConfig struct {
	RedisPrefix string
	// TTL is the absolute session lifetime. Sessions are never extended.
	TTL time.Duration
	// SecretHashCost is the bcrypt cost applied to session secrets.
	SecretHashCost int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and password length bounds.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures login and registration throttling.
type SecurityConfig struct {
	EnableLoginThrottle        bool
	MaxLoginAttempts           int
	LoginCooldownDuration      time.Duration
	EnableAddressThrottle      bool
	MaxRegistrationsPerAddress int
	RegistrationWindow         time.Duration
	RateLimitPrefix            string
}

// BanConfig configures the ban registry.
type BanConfig struct {
	// InsertRetries bounds how often Ban retries after losing a race with a
	// concurrent ban of the same entity.
	InsertRetries int
}

// StorageConfig bounds every call into the relational store and Redis.
type StorageConfig struct {
	OperationTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher. With DropIfFull
// off, an operation waits at most BlockTimeout for buffer space before the
// event is dropped.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	BlockTimeout time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// BootstrapConfig describes the owner identity created by Engine.Bootstrap.
// An empty OwnerPassword skips owner creation.
type BootstrapConfig struct {
	OwnerUsername string
	OwnerPassword string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:    "hubauth:sess",
			TTL:            time.Hour,
			SecretHashCost: bcrypt.DefaultCost,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:        true,
			MaxLoginAttempts:           5,
			LoginCooldownDuration:      15 * time.Minute,
			EnableAddressThrottle:      true,
			MaxRegistrationsPerAddress: 5,
			RegistrationWindow:         time.Hour,
			RateLimitPrefix:            "hubauth:rl",
		},
		Bans: BanConfig{
			InsertRetries: 3,
		},
		Storage: StorageConfig{
			OperationTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize:   1024,
			DropIfFull:   true,
			BlockTimeout: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Bootstrap: BootstrapConfig{
			OwnerUsername: "owner",
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first configuration problem found, or nil. It does not
// mutate c.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.SecretHashCost < bcrypt.MinCost || c.Session.SecretHashCost > bcrypt.MaxCost {
		return errors.New("Session SecretHashCost must be a valid bcrypt cost")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Password
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
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.MaxRegistrationsPerAddress < 0 {
		return errors.New("MaxRegistrationsPerAddress must be >= 0")
	}
	if c.Security.MaxRegistrationsPerAddress > 0 && c.Security.RegistrationWindow <= 0 {
		return errors.New("RegistrationWindow must be > 0 when registrations are throttled")
	}

	// Bans
	if c.Bans.InsertRetries < 1 {
		return errors.New("Bans InsertRetries must be >= 1")
	}

	// Storage
	if c.Storage.OperationTimeout <= 0 {
		return errors.New("Storage OperationTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull && c.Audit.BlockTimeout <= 0 {
		return errors.New("Audit BlockTimeout must be > 0 when DropIfFull is disabled")
	}

	// Bootstrap
	if c.Bootstrap.OwnerPassword != "" {
		if c.Bootstrap.OwnerUsername == "" {
			return errors.New("Bootstrap OwnerUsername is required with an owner password")
		}
		if len(c.Bootstrap.OwnerPassword) < c.Password.MinLength {
			return errors.New("Bootstrap OwnerPassword is shorter than Password MinLength")
		}
	}

	return nil
}
