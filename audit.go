package jsonfas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/jsonfas/internal/audit"
)

// AuditEvent is a structured record of one identity decision.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// AuditStats counts delivered, dropped and failed audit events.
type AuditStats = internalaudit.Stats

// MultiAuditSink fans every event out to each of sinks in order.
func MultiAuditSink(sinks ...AuditSink) AuditSink {
	return internalaudit.MultiSink(sinks...)
}

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	auditEventIdentityValidated = "identity_validated"
	auditEventIdentityRejected  = "identity_rejected"
	auditEventIdentityLoaded    = "identity_loaded"
	auditEventLoginRateLimited  = "login_rate_limited"
	auditEventCSRFRejected      = "csrf_rejected"
	auditEventSSLRejected       = "ssl_rejected"
	auditEventVisitKeyRotated   = "visit_key_rotated"
	auditEventLogout            = "logout"
	auditEventPasswordCheck     = "password_check"
)

// AuditErrorCode is the machine-readable error field of an [AuditEvent].
type AuditErrorCode string

const (
	auditErrAuthFailed         AuditErrorCode = "auth_failed"
	auditErrServiceUnavailable AuditErrorCode = "service_unavailable"
	auditErrServiceError       AuditErrorCode = "service_error"
	auditErrBadCSRF            AuditErrorCode = "bad_csrf"
	auditErrSSLVerify          AuditErrorCode = "ssl_verify_failed"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (p *Provider) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	visitKey string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if p == nil || p.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  username,
		RequestID: RequestIDFromContext(ctx),
		Session:   sessionDigest(visitKey),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	p.audit.Emit(ctx, event)
}

// sessionDigest lets audit consumers correlate events of one session without
// ever holding a usable visit key.
func sessionDigest(visitKey string) string {
	if visitKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(visitKey))
	return hex.EncodeToString(sum[:8])
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var serviceErr *ServiceError
	switch {
	case errors.Is(err, ErrAuthFailed):
		return auditErrAuthFailed
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrServiceUnavailable
	case errors.As(err, &serviceErr):
		return auditErrServiceError
	case errors.Is(err, ErrBadCSRFToken):
		return auditErrBadCSRF
	case errors.Is(err, ErrSSLVerifyFailed):
		return auditErrSSLVerify
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	}
	return auditErrInternal
}
