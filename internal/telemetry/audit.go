package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// AuditRoutingKey is the routing key of audit envelopes.
const AuditRoutingKey = "audit.chat"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes audit envelopes for user-visible chat actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Action         string `json:"action"`
	Text           string `json:"text"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// AuditEvent is one audited action.
type AuditEvent struct {
	Level          string
	Action         string
	Text           string
	RequestID      string
	UserID         int64
	ConversationID int64
}

func NewAuditEmitter(publisher Publisher, service, environment string, log *slog.Logger) *AuditEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  AuditRoutingKey,
		service:     service,
		environment: environment,
		log:         log,
		now:         time.Now,
	}
}

// Emit publishes an audit envelope. Failures are logged and never surface to
// the caller.
func (e *AuditEmitter) Emit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	level := ev.Level
	if level == "" {
		level = "INFO"
	}
	var userID *string
	if ev.UserID != 0 {
		id := strconv.FormatInt(ev.UserID, 10)
		userID = &id
	}

	e.log.DebugContext(ctx, "audit emit", "action", ev.Action, "request_id", ev.RequestID, "user_id", ev.UserID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     ev.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:          level,
			Action:         ev.Action,
			Text:           ev.Text,
			ConversationID: ev.ConversationID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.WarnContext(ctx, "audit publish failed", "action", ev.Action, "error", err)
	}
}
