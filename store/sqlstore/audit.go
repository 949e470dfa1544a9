package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/serverhub/hubauth/internal/audit"
)

// AuditSink persists audit events to the audit_log table. Write failures are
// logged and never surfaced to the operation that produced the event.
type AuditSink struct {
	store  *Store
	logger *slog.Logger
}

// NewAuditSink returns a sink writing through s.
func NewAuditSink(s *Store, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditSink{store: s, logger: logger}
}

func (a *AuditSink) Emit(ctx context.Context, event audit.Event) {
	if err := a.write(ctx, event); err != nil {
		a.logger.Error("audit write failed",
			slog.String("audit_id", event.ID),
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
		)
	}
}

func (a *AuditSink) write(ctx context.Context, event audit.Event) error {
	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	query := a.store.dialect.rebind(`INSERT INTO audit_log
		(id, event_type, level, source, actor, subject, ip, success, message, error, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := a.store.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.Level, event.Source, event.Actor, event.Subject,
		event.IP, event.Success, event.Message, event.Error, string(metadata), millis(event.Timestamp),
	)
	return err
}

// Recent returns up to limit audit events, newest first.
func (a *AuditSink) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := a.store.dialect.rebind(`SELECT id, event_type, level, source, actor, subject, ip, success, message, error, metadata, created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := a.store.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: audit query: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev       audit.Event
			metadata string
			created  int64
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Level, &ev.Source, &ev.Actor, &ev.Subject,
			&ev.IP, &ev.Success, &ev.Message, &ev.Error, &metadata, &created); err != nil {
			return nil, fmt.Errorf("sqlstore: audit scan: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("sqlstore: audit metadata: %w", err)
			}
		}
		ev.Timestamp = fromMillis(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}
