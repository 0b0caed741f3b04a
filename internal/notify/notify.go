// Package notify publishes domain events (tally issued, person promoted, ...)
// to downstream consumers. Publishing is fire-and-forget from the caller's
// point of view: a failed publish is logged and never undoes the change.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flock/pkg/requestcontext"
)

// EventType names a published event.
type EventType string

const (
	EventPersonRegistered  EventType = "person.registered"
	EventPersonPromoted    EventType = "person.promoted"
	EventAttendanceMarked  EventType = "attendance.marked"
	EventTallyIssued       EventType = "tally.issued"
	EventTallyMapped       EventType = "tally.mapped"
	EventTallyVoided       EventType = "tally.voided"
	EventFollowUpCreated   EventType = "followup.created"
	EventBirthdayGreeted   EventType = "birthday.greeted"
	EventAbsenteeCandidate EventType = "absentee.candidate"
)

// Event is the envelope every notifier receives. Subject is the aggregate id
// the event is about and doubles as the partition key.
type Event struct {
	Type       EventType      `json:"type"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	OperatorID string         `json:"operator_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent stamps an event with the request-scoped time, operator and request id.
func NewEvent(ctx context.Context, typ EventType, subject string, data map[string]any) Event {
	return Event{
		Type:       typ,
		Subject:    subject,
		Data:       data,
		OperatorID: requestcontext.OperatorID(ctx).String(),
		RequestID:  requestcontext.RequestID(ctx),
		OccurredAt: requestcontext.Now(ctx),
	}
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events as audit log lines.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	args := []any{
		"event", string(e.Type),
		"log_type", "audit",
		"subject", e.Subject,
	}
	if e.OperatorID != "" {
		args = append(args, "operator_id", e.OperatorID)
	}
	if e.RequestID != "" {
		args = append(args, "request_id", e.RequestID)
	}
	for k, v := range e.Data {
		args = append(args, k, v)
	}
	n.logger.InfoContext(ctx, string(e.Type), args...)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes e on n and logs a failure. It is the call sites' single
// entry point so a broken sink never fails an operation.
func Emit(ctx context.Context, n Notifier, logger *slog.Logger, e Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to publish event",
			"event", string(e.Type),
			"subject", e.Subject,
			"error", err,
		)
	}
}
