package hubauth

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Session.TTL != time.Hour {
		t.Fatalf("expected 1h session ttl, got %v", cfg.Session.TTL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "zero session ttl",
			mutate:    func(c *Config) { c.Session.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "bcrypt cost too high",
			mutate:    func(c *Config) { c.Session.SecretHashCost = 40 },
			wantValid: false,
		},
		{
			name:      "empty redis prefix",
			mutate:    func(c *Config) { c.Session.RedisPrefix = "" },
			wantValid: false,
		},
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 4096 },
			wantValid: false,
		},
		{
			name: "inverted password bounds",
			mutate: func(c *Config) {
				c.Password.MinLength = 20
				c.Password.MaxLength = 10
			},
			wantValid: false,
		},
		{
			name:      "throttle without attempts",
			mutate:    func(c *Config) { c.Security.MaxLoginAttempts = 0 },
			wantValid: false,
		},
		{
			name: "throttle disabled ignores attempts",
			mutate: func(c *Config) {
				c.Security.EnableLoginThrottle = false
				c.Security.MaxLoginAttempts = 0
			},
			wantValid: true,
		},
		{
			name:      "registration throttle without window",
			mutate:    func(c *Config) { c.Security.RegistrationWindow = 0 },
			wantValid: false,
		},
		{
			name:      "no ban retries",
			mutate:    func(c *Config) { c.Bans.InsertRetries = 0 },
			wantValid: false,
		},
		{
			name:      "no storage timeout",
			mutate:    func(c *Config) { c.Storage.OperationTimeout = 0 },
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "blocking audit without timeout",
			mutate: func(c *Config) {
				c.Audit.DropIfFull = false
				c.Audit.BlockTimeout = 0
			},
			wantValid: false,
		},
		{
			name: "dropping audit without timeout",
			mutate: func(c *Config) {
				c.Audit.BlockTimeout = 0
			},
			wantValid: true,
		},
		{
			name: "audit disabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name:      "short owner password",
			mutate:    func(c *Config) { c.Bootstrap.OwnerPassword = "short" },
			wantValid: false,
		},
		{
			name: "owner password without username",
			mutate: func(c *Config) {
				c.Bootstrap.OwnerUsername = ""
				c.Bootstrap.OwnerPassword = "long-enough-password"
			},
			wantValid: false,
		},
		{
			name:      "owner password",
			mutate:    func(c *Config) { c.Bootstrap.OwnerPassword = "long-enough-password" },
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}
