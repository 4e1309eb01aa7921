// Package service contains infrastructure adapters for the application layer.
package service

import (
	"context"
	"log/slog"

	"github.com/coursehub/progress-engine/internal/domain/shared"
)

// LogNotifier implements the orchestrator's Notifier by writing structured
// log entries. Delivery to learners (push, email) is handled by a separate
// notification system consuming these events downstream.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the domain event with its payload.
func (n *LogNotifier) Notify(_ context.Context, event shared.Event) error {
	attrs := []any{
		"event_type", string(event.EventType()),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	}
	for k, v := range event.Payload() {
		attrs = append(attrs, k, v)
	}

	n.logger.Info("domain event", attrs...)
	return nil
}
