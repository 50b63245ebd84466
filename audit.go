package authcore

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is the structured audit record delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit records from the engine's async dispatcher.
type AuditSink = audit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

// NoOpAuditSink drops audit records.
type NoOpAuditSink = audit.NoOpSink

// ChannelSink buffers audit records in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per audit record.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes audit records through a slog.Logger.
type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }

// auditBridge translates domain events into audit records. Plaintext codes
// and links never leave the domain event.
type auditBridge struct {
	dispatcher *audit.Dispatcher
	sessionID  string
	now        func() time.Time
}

func (b auditBridge) Dispatch(ctx context.Context, event Event) {
	if b.dispatcher == nil {
		return
	}

	record := AuditEvent{
		Timestamp: b.now().UTC(),
		EventType: event.EventName(),
		SessionID: b.sessionID,
		Success:   true,
	}

	switch e := event.(type) {
	case LoginAttemptEvent:
		record.Subject = e.Identifier
		record.Success = e.Succeeded
	case LogoutEvent:
		if e.Identity != nil {
			record.Subject = e.Identity.ID()
		}
	case VerificationCodeCreatedEvent:
		record.Subject = e.AccountID
		record.Metadata = map[string]string{"channel_present": strconv.FormatBool(e.To != "")}
	case VerificationURLCreatedEvent:
		record.Subject = e.AccountID
		record.Metadata = map[string]string{"channel_present": strconv.FormatBool(e.To != "")}
	case AccountVerifiedEvent:
		if e.Account != nil {
			record.Subject = e.Account.ID
		}
		if e.Method != "" {
			record.Metadata = map[string]string{"method": e.Method}
		}
	}

	b.dispatcher.Emit(ctx, record)
}
