package hubauth

import (
	"context"
	"io"
	"log/slog"

	internalaudit "github.com/serverhub/hubauth/internal/audit"
)

// AuditEvent is one entry of the authority's audit trail.
type AuditEvent = internalaudit.Event

// AuditSink receives dispatched audit events. Emit must not block for long;
// the dispatcher delivers from a single goroutine.
type AuditSink = internalaudit.Sink

// AuditReader returns the most recent audit events, newest first. The SQL
// store's audit sink implements it.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]AuditEvent, error)
}

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	SlogSink       = internalaudit.SlogSink
	MultiSink      = internalaudit.MultiSink
)

// Audit importance levels.
const (
	AuditLevelInfo     = internalaudit.LevelInfo
	AuditLevelWarning  = internalaudit.LevelWarning
	AuditLevelError    = internalaudit.LevelError
	AuditLevelCritical = internalaudit.LevelCritical
)

// Audit sources.
const (
	AuditSourceUser   = internalaudit.SourceUser
	AuditSourceSystem = internalaudit.SourceSystem
)

// NewChannelSink returns a sink that forwards events to a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink that logs every event through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
