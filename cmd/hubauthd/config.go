package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/serverhub/hubauth"
	"github.com/serverhub/hubauth/store/sqlstore"
)

// daemonConfig is read from HUB_* environment variables.
type daemonConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8090"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"hubauth.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	PurgeInterval time.Duration `envconfig:"PURGE_INTERVAL" default:"5m"`

	LoginThrottle    bool `envconfig:"LOGIN_THROTTLE" default:"true"`
	MaxLoginAttempts int  `envconfig:"MAX_LOGIN_ATTEMPTS" default:"5"`
	MaxRegistrations int  `envconfig:"MAX_REGISTRATIONS_PER_ADDRESS" default:"5"`

	OwnerUsername string `envconfig:"OWNER_USERNAME" default:"owner"`
	OwnerPassword string `envconfig:"OWNER_PASSWORD"`

	AuditStdout bool `envconfig:"AUDIT_STDOUT" default:"false"`
}

func loadConfig() (daemonConfig, error) {
	var cfg daemonConfig
	if err := envconfig.Process("hub", &cfg); err != nil {
		return daemonConfig{}, err
	}
	switch cfg.DBDriver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
	default:
		return daemonConfig{}, fmt.Errorf("unsupported HUB_DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.PurgeInterval <= 0 {
		return daemonConfig{}, fmt.Errorf("HUB_PURGE_INTERVAL must be > 0")
	}
	return cfg, nil
}

// engineConfig maps daemon settings onto the engine defaults.
func (c daemonConfig) engineConfig() hubauth.Config {
	cfg := hubauth.DefaultConfig()
	cfg.Session.TTL = c.SessionTTL
	cfg.Security.EnableLoginThrottle = c.LoginThrottle
	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts
	cfg.Security.MaxRegistrationsPerAddress = c.MaxRegistrations
	cfg.Bootstrap.OwnerUsername = c.OwnerUsername
	cfg.Bootstrap.OwnerPassword = c.OwnerPassword
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}
