// Package eventbus publishes audit events describing planner activity
// (tasks created, schedules rebuilt, calendar synced).
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// AuditEvent records a user-visible planner action.
type AuditEvent struct {
	EventID    uuid.UUID      `json:"event_id"`
	UserID     uuid.UUID      `json:"user_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditEvent builds an audit event stamped with a fresh ID and time.
func NewAuditEvent(userID uuid.UUID, action, entityType, entityID string) AuditEvent {
	return AuditEvent{
		EventID:    uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
}

// PublishAudit marshals and publishes an audit event. Publish failures are
// logged and swallowed; audit delivery never fails the triggering request.
func PublishAudit(ctx context.Context, pub Publisher, logger *slog.Logger, event AuditEvent) {
	if pub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal audit event", "action", event.Action, "error", err)
		return
	}
	if err := pub.Publish(ctx, "audit."+event.Action, payload); err != nil {
		logger.Warn("audit publish failed", "action", event.Action, "error", err)
	}
}

// NoopPublisher discards all events. Used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that drops events.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the event at debug level and discards it.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.logger.Debug("event discarded (noop publisher)", "routing_key", routingKey)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }
