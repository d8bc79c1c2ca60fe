package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Auth event types.
const (
	EventLogin          = "login"
	EventLoginFailure   = "login_failure"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventPasswordReset  = "password_reset"
	EventPasswordChange = "password_change"
)

// SourceAPI marks events raised by the HTTP API.
const SourceAPI = "api"

// Event is one auth lifecycle event. It is serialized as JSON on Kafka and
// mapped to an OTel log record by the otel emitter.
type Event struct {
	Type      string            `json:"type"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an API event stamped with the current time.
func NewEvent(eventType, userID, sessionID string) *Event {
	return &Event{
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		Source:    SourceAPI,
		CreatedAt: time.Now().UTC(),
	}
}

// MetadataJSON returns the metadata as a JSON object, or nil when empty.
func (e *Event) MetadataJSON() []byte {
	if len(e.Metadata) == 0 {
		return nil
	}
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil
	}
	return b
}

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every non-nil emitter. All emitters run; their errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multi
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
