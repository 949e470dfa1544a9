package hubauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/serverhub/hubauth/store"
)

// errBanRace is returned when every insert attempt lost to a concurrent ban
// of the same entity.
var errBanRace = fmt.Errorf("concurrent ban %w", ErrAlreadyExists)

// Ban blocks a user or a network address. Any block already active for the
// entity is replaced, so at most one block per entity is ever active.
//
// Address bans then call the ResourceRevoker. If it fails the block stays in
// force and the returned error matches ErrRevocationFailed.
func (e *Engine) Ban(ctx context.Context, req BanRequest) (Block, error) {
	if e == nil {
		return Block{}, ErrEngineNotReady
	}
	if err := validateBanRequest(req); err != nil {
		return Block{}, err
	}
	name, err := normalizeBanTarget(req.EntityName, req.Kind)
	if err != nil {
		return Block{}, err
	}

	issuedBy := req.IssuedBy
	if issuedBy == "" {
		issuedBy = SystemActor
	}

	now := e.now()
	block := Block{
		EntityName: name,
		Kind:       req.Kind,
		Reason:     req.Reason,
		IssuedBy:   issuedBy,
		CreatedAt:  now,
		Active:     true,
	}
	if req.Duration != nil {
		unblockAt := now.Add(*req.Duration)
		block.UnblockAt = &unblockAt
	}

	for attempt := 0; attempt < e.config.Bans.InsertRetries; attempt++ {
		if attempt > 0 {
			e.metricInc(MetricBanInsertRetry)
		}
		block.ID = uuid.NewString()
		err = e.inTx(ctx, func(tx store.Tx) error {
			if _, err := tx.DeactivateBans(ctx, name, string(req.Kind)); err != nil {
				return err
			}
			if err := tx.InsertBan(ctx, banToRow(block)); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return errBanRace
				}
				return err
			}
			return nil
		})
		if !errors.Is(err, errBanRace) {
			break
		}
	}
	if err != nil {
		e.emitAudit(ctx, auditEventBanAdded, false, issuedBy, name, "", err, nil)
		return Block{}, err
	}

	e.metricInc(MetricBanAdded)
	e.emitAudit(ctx, auditEventBanAdded, true, issuedBy, name, describeBan(block), nil, func() map[string]string {
		return map[string]string{"ban_id": block.ID, "kind": string(block.Kind)}
	})

	if block.Kind == BanAddress {
		if err := e.revokeAddress(ctx, name); err != nil {
			return block, err
		}
	}
	return block, nil
}

func (e *Engine) revokeAddress(ctx context.Context, address string) error {
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revoker.RevokeAddress(opCtx, address); err != nil {
		e.metricInc(MetricAddressRevocationFailed)
		e.logger.Error("revoking resources of banned address failed", "address", address, "error", err)
		err = fmt.Errorf("%w: %v", ErrRevocationFailed, err)
		e.emitAudit(ctx, auditEventAddressRevocation, false, SystemActor, address, "", err, nil)
		return err
	}
	e.emitAudit(ctx, auditEventAddressRevocation, true, SystemActor, address, "", nil, nil)
	return nil
}

// Unban lifts the active block on an entity. Unbanning an entity with no
// active block does nothing and returns nil.
func (e *Engine) Unban(ctx context.Context, actor, entityName string, kind BanKind) error {
	if e == nil {
		return ErrEngineNotReady
	}
	name, err := normalizeBanTarget(entityName, kind)
	if err != nil {
		return err
	}

	var lifted int64
	err = e.inTx(ctx, func(tx store.Tx) error {
		var err error
		lifted, err = tx.DeactivateBans(ctx, name, string(kind))
		return err
	})
	if err != nil {
		return err
	}
	if lifted == 0 {
		return nil
	}

	e.metricInc(MetricBanRemoved)
	e.emitAudit(ctx, auditEventBanRemoved, true, actor, name,
		fmt.Sprintf("unbanned %s '%s'", kind, name), nil, nil)
	return nil
}

// IsBlocked reports whether an active block applies to the entity. A block
// whose unblock time has passed is deactivated on the spot and reported as
// not blocking.
func (e *Engine) IsBlocked(ctx context.Context, entityName string, kind BanKind) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	_, found, err := e.activeBan(ctx, entityName, kind)
	return found, err
}

// ActiveBan returns the block currently in force for the entity, or
// ErrBanNotFound.
func (e *Engine) ActiveBan(ctx context.Context, entityName string, kind BanKind) (Block, error) {
	if e == nil {
		return Block{}, ErrEngineNotReady
	}
	block, found, err := e.activeBan(ctx, entityName, kind)
	if err != nil {
		return Block{}, err
	}
	if !found {
		return Block{}, ErrBanNotFound
	}
	return block, nil
}

// ActiveBans lists every block in force, oldest first. Expired blocks are
// skipped but not deactivated.
func (e *Engine) ActiveBans(ctx context.Context) ([]Block, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	now := e.now()
	var blocks []Block
	err := e.inTx(ctx, func(tx store.Tx) error {
		rows, err := tx.ListActiveBans(ctx)
		if err != nil {
			return err
		}
		blocks = make([]Block, 0, len(rows))
		for _, row := range rows {
			if banExpired(row, now) {
				continue
			}
			blocks = append(blocks, banFromRow(row))
		}
		return nil
	})
	return blocks, err
}

func (e *Engine) activeBan(ctx context.Context, entityName string, kind BanKind) (Block, bool, error) {
	name, err := normalizeBanTarget(entityName, kind)
	if err != nil {
		return Block{}, false, err
	}

	var (
		block   Block
		found   bool
		expired bool
	)
	err = e.inTx(ctx, func(tx store.Tx) error {
		found, expired = false, false

		row, err := tx.ActiveBan(ctx, name, string(kind), true)
		if errors.Is(err, store.ErrNoRecord) {
			return nil
		}
		if err != nil {
			return err
		}

		if banExpired(row, e.now()) {
			if _, err := tx.DeactivateBans(ctx, name, string(kind)); err != nil {
				return err
			}
			expired = true
			return nil
		}

		block, found = banFromRow(row), true
		return nil
	})
	if err != nil {
		return Block{}, false, err
	}

	if expired {
		e.metricInc(MetricBanExpired)
		e.emitAudit(ctx, auditEventBanExpired, true, SystemActor, name,
			fmt.Sprintf("%s '%s' unbanned after the ban expired", kind, name), nil, nil)
	}
	return block, found, nil
}

func banExpired(row store.Ban, now time.Time) bool {
	return row.UnblockAt != nil && now.After(*row.UnblockAt)
}

func describeBan(b Block) string {
	until := "permanently"
	if b.UnblockAt != nil {
		until = "until " + b.UnblockAt.UTC().Format(time.RFC3339)
	}
	reason := b.Reason
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Sprintf("banned %s '%s' %s: %s", b.Kind, b.EntityName, until, reason)
}

func banToRow(b Block) store.Ban {
	return store.Ban{
		ID:         b.ID,
		EntityName: b.EntityName,
		EntityKind: string(b.Kind),
		Reason:     b.Reason,
		IssuedBy:   b.IssuedBy,
		CreatedAt:  b.CreatedAt,
		UnblockAt:  b.UnblockAt,
		Active:     b.Active,
	}
}

func banFromRow(row store.Ban) Block {
	return Block{
		ID:         row.ID,
		EntityName: row.EntityName,
		Kind:       BanKind(row.EntityKind),
		Reason:     row.Reason,
		IssuedBy:   row.IssuedBy,
		CreatedAt:  row.CreatedAt,
		UnblockAt:  row.UnblockAt,
		Active:     row.Active,
	}
}
