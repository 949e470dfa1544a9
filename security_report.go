package hubauth

import "time"

// SecurityReport summarizes the hardening posture an Engine runs with. It
// carries parameters only, never secrets.
type SecurityReport struct {
	SessionTTL             time.Duration
	SessionHashCost        int
	Argon2                 PasswordConfigReport
	HashUpgradeOnLogin     bool
	LoginThrottleActive    bool
	RegistrationCapActive  bool
	AuditEnabled           bool
	AuditMayDrop           bool
	AuditBlockTimeout      time.Duration
	ResourceRevokerWired   bool
	OwnerBootstrapPending  bool
	StorageOperationBudget time.Duration
}

// PasswordConfigReport mirrors the Argon2id parameters of new hashes.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	throttle := e.config.Security.EnableLoginThrottle &&
		e.config.Security.MaxLoginAttempts > 0 &&
		e.config.Security.LoginCooldownDuration > 0

	registrationCap := e.config.Security.EnableAddressThrottle &&
		e.config.Security.MaxRegistrationsPerAddress > 0

	_, noRevoker := e.revoker.(noopRevoker)

	// Every enabled mode can lose events; blocking mode first waits.
	var auditBlockTimeout time.Duration
	if e.config.Audit.Enabled && !e.config.Audit.DropIfFull {
		auditBlockTimeout = e.config.Audit.BlockTimeout
	}

	return SecurityReport{
		SessionTTL:      e.config.Session.TTL,
		SessionHashCost: e.config.Session.SecretHashCost,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
			MinLength:   e.config.Password.MinLength,
			MaxLength:   e.config.Password.MaxLength,
		},
		HashUpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		LoginThrottleActive:    throttle,
		RegistrationCapActive:  registrationCap,
		AuditEnabled:           e.config.Audit.Enabled,
		AuditMayDrop:           e.config.Audit.Enabled,
		AuditBlockTimeout:      auditBlockTimeout,
		ResourceRevokerWired:   !noRevoker,
		OwnerBootstrapPending:  e.config.Bootstrap.OwnerPassword != "",
		StorageOperationBudget: e.config.Storage.OperationTimeout,
	}
}
