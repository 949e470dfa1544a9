package hubauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/serverhub/hubauth/internal/audit"
	"github.com/serverhub/hubauth/internal/rate"
	"github.com/serverhub/hubauth/password"
	"github.com/serverhub/hubauth/session"
	"github.com/serverhub/hubauth/store"
)

// Engine is the hub's identity, permission, session and ban authority. It is
// safe for concurrent use. Build one with New().Build().
type Engine struct {
	config    Config
	store     store.Store
	sessions  *session.Store
	limiter   *rate.Limiter
	passwords *password.Argon2
	revoker   ResourceRevoker
	audit     *internalaudit.Dispatcher
	auditLog  AuditReader
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close drains pending audit events. It does not close the store or the
// Redis client; their owner does.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks both backends.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.store.Ping(ctx); err != nil {
		return e.storageError(err)
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return e.storageError(err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Storage.OperationTimeout)
}

// inTx runs fn in one store transaction bounded by the operation timeout.
// Errors returned by fn that already carry a kind pass through; everything
// else becomes ErrBackendUnavailable.
func (e *Engine) inTx(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	return e.storageError(e.store.InTx(ctx, fn))
}

func (e *Engine) storageError(err error) error {
	err = backendError(err)
	if errors.Is(err, ErrBackendUnavailable) {
		e.metricInc(MetricBackendUnavailable)
		e.logger.Error("storage operation failed", "error", err)
	}
	return err
}
