package telemetry

import (
	"context"
	"log"
	"time"
)

// Levels an audit record may carry.
const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

const auditSchemaVersion = 2

// Publisher is the transport audit envelopes leave through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter ships mutation audit records to the central audit pipeline.
// A nil emitter or nil publisher is valid and emits nothing, so handlers
// never guard their audit calls.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

// AuditEnvelope is the versioned wire format the audit pipeline consumes.
// Action is a dotted slug naming the mutation, such as group.created or
// message.deleted_for_all; consumers route on it.
type AuditEnvelope struct {
	SchemaVersion int     `json:"schema_version"`
	Action        string  `json:"action"`
	Level         string  `json:"level"`
	OccurredAt    string  `json:"occurred_at"`
	Service       string  `json:"service"`
	Environment   string  `json:"environment"`
	RequestID     string  `json:"request_id"`
	UserID        *string `json:"user_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. Publish failures are logged and
// swallowed; auditing never fails a request.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: level=%s action=%s request_id=%s user_id=%v", level, action, requestID, userID)
	envelope := AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		Action:        action,
		Level:         level,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: action=%s err=%v", action, err)
	}
}
