package hubauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/serverhub/hubauth/internal/rate"
	"github.com/serverhub/hubauth/password"
	"github.com/serverhub/hubauth/permission"
	"github.com/serverhub/hubauth/store"
)

// Bootstrap creates the base roles and, when Config.Bootstrap.OwnerPassword
// is set, the owner identity. It is idempotent.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.CreateBaseRoles(ctx); err != nil {
		return err
	}

	owner := e.config.Bootstrap
	if owner.OwnerPassword == "" {
		return nil
	}
	created, err := e.systemCreateUser(ctx, NewUser{
		Username: owner.OwnerUsername,
		Password: owner.OwnerPassword,
		Role:     RoleOwner,
	})
	if err != nil {
		return err
	}
	if created {
		e.logger.Info("owner identity created", "username", owner.OwnerUsername)
		e.emitAudit(ctx, auditEventOwnerBootstrapped, true, SystemActor, owner.OwnerUsername, "created owner identity", nil, nil)
	}
	return nil
}

// CreateUser creates an identity. The username must be unused; concurrent
// creations of the same name leave exactly one winner and every other caller
// gets ErrUserAlreadyExists.
func (e *Engine) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}
	user, err := e.createUser(ctx, nu)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			e.metricInc(MetricUserDuplicate)
		}
		e.emitAudit(ctx, auditEventUserCreated, false, nu.Username, nu.Username, "", err, nil)
		return User{}, err
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventUserCreated, true, user.Username, user.Username,
		fmt.Sprintf("created user '%s' as %s", user.Username, user.Assignment), nil, nil)
	return user, nil
}

// SystemCreateUser creates an identity on behalf of the hub. An existing
// identity with the same name is left as it is and no error is returned.
func (e *Engine) SystemCreateUser(ctx context.Context, nu NewUser) error {
	if e == nil {
		return ErrEngineNotReady
	}
	_, err := e.systemCreateUser(ctx, nu)
	return err
}

func (e *Engine) systemCreateUser(ctx context.Context, nu NewUser) (bool, error) {
	user, err := e.createUser(ctx, nu)
	if errors.Is(err, ErrUserAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventUserCreated, true, SystemActor, user.Username,
		fmt.Sprintf("created user '%s' as %s", user.Username, user.Assignment), nil, nil)
	return true, nil
}

func (e *Engine) createUser(ctx context.Context, nu NewUser) (User, error) {
	if nu.Role == "" {
		nu.Role = DefaultRole
	}
	if err := validateNewUser(nu); err != nil {
		return User{}, err
	}
	if nu.Username == SystemActor {
		return User{}, ErrInvalidUsername
	}
	if !nu.Rights.Valid() {
		return User{}, ErrInvalidRights
	}

	hash, err := e.passwords.Hash(nu.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
		}
		return User{}, err
	}

	row := store.User{
		Username:     nu.Username,
		PasswordHash: hash,
		CreatedAt:    e.now(),
	}
	var assignment permission.Assignment

	err = e.inTx(ctx, func(tx store.Tx) error {
		role, err := tx.GetRole(ctx, nu.Role, false)
		switch {
		case err == nil:
			assignment = permission.Named(role.Name)
			row.Permissions = role.Permissions
		case errors.Is(err, store.ErrNoRecord):
			assignment = permission.Custom(nu.Rights)
			row.Permissions = nu.Rights.Raw()
		default:
			return err
		}
		row.Role = assignment.Label()

		if err := tx.InsertUser(ctx, row); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrUserAlreadyExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}

	return User{
		Username:    row.Username,
		Assignment:  assignment,
		Permissions: permission.Set(row.Permissions),
		CreatedAt:   row.CreatedAt,
	}, nil
}

// User returns the identity called username.
func (e *Engine) User(ctx context.Context, username string) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}

	var user User
	err := e.inTx(ctx, func(tx store.Tx) error {
		row, err := tx.GetUser(ctx, username, false)
		if errors.Is(err, store.ErrNoRecord) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		user = userFromRow(row)
		return nil
	})
	return user, err
}

// UpdateAccessRights changes the assignment of username on behalf of actor.
//
// update.Role is resolved first; when it is nil or names no existing role,
// update.Rights becomes a custom assignment. The actor needs ModifyAccess and
// must hold every bit of the resulting rights. The actor and target rows are
// both locked, in username order, before the actor's rights are checked.
func (e *Engine) UpdateAccessRights(ctx context.Context, actor, username string, update AccessUpdate) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}
	if update.Rights != nil && !update.Rights.Valid() {
		return User{}, ErrInvalidRights
	}

	var (
		updated  User
		previous permission.Assignment
	)
	err := e.inTx(ctx, func(tx store.Tx) error {
		actorRow, target, err := lockActorAndTarget(ctx, tx, actor, username)
		if err != nil {
			return err
		}
		previous = permission.AssignmentFromStorage(target.Role, permission.Set(target.Permissions))

		assignment, rights, err := resolveAssignment(ctx, tx, update)
		if err != nil {
			return err
		}

		if !permission.CanGrant(permission.Set(actorRow.Permissions), rights) {
			return ErrInsufficientAccessRights
		}

		if err := tx.UpdateUserAccess(ctx, username, assignment.Label(), rights.Raw()); err != nil {
			if errors.Is(err, store.ErrNoRecord) {
				return ErrUserNotFound
			}
			return err
		}

		updated = User{
			Username:    target.Username,
			Assignment:  assignment,
			Permissions: rights,
			CreatedAt:   target.CreatedAt,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientAccessRights) {
			e.metricInc(MetricAccessRightsDenied)
			e.emitAudit(ctx, auditEventAccessRightsDenied, false, actor, username, "", err, nil)
		}
		return User{}, err
	}

	e.metricInc(MetricAccessRightsUpdated)
	e.emitAudit(ctx, auditEventAccessRightsUpdated, true, actor, username,
		fmt.Sprintf("changed access of '%s' from %s to %s (%s)", username, previous, updated.Assignment, updated.Permissions.Describe()),
		nil, nil)
	return updated, nil
}

// lockActorAndTarget reads both rows with a row lock. Locks are taken in
// username order so two grants naming the same pair cannot deadlock.
func lockActorAndTarget(ctx context.Context, tx store.Tx, actor, username string) (store.User, store.User, error) {
	order := []string{actor, username}
	if username < actor {
		order[0], order[1] = username, actor
	}

	rows := make(map[string]store.User, 2)
	for i, name := range order {
		if i > 0 && name == order[0] {
			continue
		}
		row, err := tx.GetUser(ctx, name, true)
		if errors.Is(err, store.ErrNoRecord) {
			continue
		}
		if err != nil {
			return store.User{}, store.User{}, err
		}
		rows[name] = row
	}

	actorRow, ok := rows[actor]
	if !ok {
		return store.User{}, store.User{}, ErrInsufficientAccessRights
	}
	target, ok := rows[username]
	if !ok {
		return store.User{}, store.User{}, ErrUserNotFound
	}
	return actorRow, target, nil
}

func resolveAssignment(ctx context.Context, tx store.Tx, update AccessUpdate) (permission.Assignment, permission.Set, error) {
	if update.Role != nil {
		role, err := tx.GetRole(ctx, *update.Role, false)
		if err == nil {
			set := permission.Set(role.Permissions)
			return permission.Named(role.Name), set, nil
		}
		if !errors.Is(err, store.ErrNoRecord) {
			return permission.Assignment{}, permission.None, err
		}
	}
	if update.Rights == nil {
		return permission.Assignment{}, permission.None, ErrRightsRequired
	}
	return permission.Custom(*update.Rights), *update.Rights, nil
}

// Authenticate checks a username and password. Every failure, including an
// unknown username, returns ErrInvalidCredentials after comparable work.
func (e *Engine) Authenticate(ctx context.Context, username, plaintext string) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}

	var row store.User
	err := e.inTx(ctx, func(tx store.Tx) error {
		var err error
		row, err = tx.GetUser(ctx, username, false)
		if errors.Is(err, store.ErrNoRecord) {
			return ErrUserNotFound
		}
		return err
	})
	if errors.Is(err, ErrUserNotFound) {
		e.passwords.VerifyDummy(plaintext)
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	ok, err := e.passwords.Verify(plaintext, row.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrMalformedHash) {
			e.logger.Error("stored password hash is malformed", "username", username)
		}
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, username, plaintext, row.PasswordHash)
	}

	return userFromRow(row), nil
}

func (e *Engine) upgradePasswordHash(ctx context.Context, username, plaintext, current string) {
	needsUpgrade, err := e.passwords.NeedsUpgrade(current)
	if err != nil || !needsUpgrade {
		return
	}

	hash, err := e.passwords.Hash(plaintext)
	if err != nil {
		return
	}
	err = e.inTx(ctx, func(tx store.Tx) error {
		return tx.UpdateUserPassword(ctx, username, hash)
	})
	if err != nil {
		e.logger.Warn("password hash upgrade failed", "username", username, "error", err)
		return
	}
	e.emitAudit(ctx, auditEventPasswordHashUpgraded, true, SystemActor, username, "", nil, nil)
}

// Login authenticates username and issues a session. The caller's address,
// taken from WithClientIP, is checked against address bans and the login
// throttle first; a banned identity is refused after its password checks out.
func (e *Engine) Login(ctx context.Context, username, plaintext string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	address := clientIPFromContext(ctx)

	if err := e.checkLoginThrottle(ctx, username, address); err != nil {
		if errors.Is(err, ErrLoginRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, username, username, "", err, nil)
		}
		return LoginResult{}, err
	}

	if err := e.checkAddress(ctx, address); err != nil {
		if errors.Is(err, ErrBanned) {
			e.metricInc(MetricLoginBanned)
			e.emitAudit(ctx, auditEventLoginBanned, false, username, address, "", err, nil)
		}
		return LoginResult{}, err
	}

	user, err := e.Authenticate(ctx, username, plaintext)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricLoginFailure)
			e.recordLoginFailure(ctx, username, address)
			e.emitAudit(ctx, auditEventLoginFailure, false, username, username, "", err, nil)
		}
		return LoginResult{}, err
	}

	blocked, err := e.IsBlocked(ctx, username, BanUser)
	if err != nil {
		return LoginResult{}, err
	}
	if blocked {
		e.metricInc(MetricLoginBanned)
		e.emitAudit(ctx, auditEventLoginBanned, false, username, username, "", ErrUserBanned, nil)
		return LoginResult{}, ErrUserBanned
	}

	e.resetLoginThrottle(ctx, username)

	token, info, err := e.IssueSession(ctx, username)
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, username, username, "", nil, func() map[string]string {
		return map[string]string{"session_id": info.ID}
	})
	return LoginResult{Token: token, Session: info, User: user}, nil
}

// Register creates an identity with the default role and logs it in. The
// caller's address is charged against the registration budget before any
// work is done.
func (e *Engine) Register(ctx context.Context, username, plaintext string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	address := clientIPFromContext(ctx)

	if err := e.checkAddress(ctx, address); err != nil {
		return LoginResult{}, err
	}
	if err := e.allowRegistration(ctx, address); err != nil {
		if errors.Is(err, ErrRegistrationRateLimited) {
			e.metricInc(MetricRegistrationRateLimited)
			e.emitAudit(ctx, auditEventRegistration, false, username, address, "", err, nil)
		}
		return LoginResult{}, err
	}

	user, err := e.CreateUser(ctx, NewUser{Username: username, Password: plaintext})
	if err != nil {
		return LoginResult{}, err
	}

	token, info, err := e.IssueSession(ctx, username)
	if err != nil {
		return LoginResult{}, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistration, true, username, username, "", nil, nil)
	return LoginResult{Token: token, Session: info, User: user}, nil
}

// checkAddress returns ErrAddressBanned when address is blocked. An empty
// address is not checked.
func (e *Engine) checkAddress(ctx context.Context, address string) error {
	if address == "" {
		return nil
	}
	blocked, err := e.IsBlocked(ctx, address, BanAddress)
	if err != nil {
		return err
	}
	if blocked {
		return ErrAddressBanned
	}
	return nil
}

func (e *Engine) checkLoginThrottle(ctx context.Context, username, address string) error {
	if e.limiter == nil || !e.config.Security.EnableLoginThrottle {
		return nil
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	err := e.limiter.CheckLogin(ctx, username, address)
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrLoginRateLimited
	}
	return e.storageError(err)
}

func (e *Engine) recordLoginFailure(ctx context.Context, username, address string) {
	if e.limiter == nil || !e.config.Security.EnableLoginThrottle {
		return
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.limiter.RecordLoginFailure(ctx, username, address); err != nil {
		e.logger.Warn("recording login failure failed", "username", username, "error", err)
	}
}

func (e *Engine) resetLoginThrottle(ctx context.Context, username string) {
	if e.limiter == nil || !e.config.Security.EnableLoginThrottle {
		return
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.limiter.ResetLogin(ctx, username); err != nil {
		e.logger.Warn("resetting login throttle failed", "username", username, "error", err)
	}
}

func (e *Engine) allowRegistration(ctx context.Context, address string) error {
	if e.limiter == nil {
		return nil
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	err := e.limiter.AllowRegistration(ctx, address)
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRegistrationRateLimited
	}
	return e.storageError(err)
}

func userFromRow(row store.User) User {
	set := permission.Set(row.Permissions)
	return User{
		Username:    row.Username,
		Assignment:  permission.AssignmentFromStorage(row.Role, set),
		Permissions: set,
		CreatedAt:   row.CreatedAt,
	}
}
