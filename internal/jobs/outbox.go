package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/garnizeh/staffing/internal/events"
)

// DeliverEventType is the job type carrying one domain event to a sink.
const DeliverEventType = "event.deliver"

const (
	priorityDomain = 100
	priorityAudit  = 200
)

// OutboxPublisher persists committed events as delivery jobs. Enqueue
// failures are logged and dropped.
type OutboxPublisher struct {
	repo        *Repository
	logger      *slog.Logger
	maxAttempts int
}

func NewOutboxPublisher(repo *Repository, logger *slog.Logger, maxAttempts int) *OutboxPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPublisher{repo: repo, logger: logger, maxAttempts: maxAttempts}
}

var _ events.Publisher = (*OutboxPublisher)(nil)

func (o *OutboxPublisher) Publish(ctx context.Context, evs ...events.Event) {
	// the caller's request may end as soon as the engine returns
	ctx = context.WithoutCancel(ctx)
	for _, ev := range evs {
		b, err := json.Marshal(ev)
		if err != nil {
			o.logger.Error("marshal event", "kind", ev.Kind, "err", err)
			continue
		}
		priority := priorityDomain
		if ev.Kind == events.KindTransition {
			priority = priorityAudit
		}
		j := &Job{Type: DeliverEventType, Payload: b, Priority: priority, MaxAttempts: o.maxAttempts}
		if _, err := o.repo.Enqueue(ctx, j); err != nil {
			o.logger.Error("enqueue event", "kind", ev.Kind, "entity", ev.Entity, "id", ev.EntityID, "err", err)
		}
	}
}

// DeliverHandler returns the handler that decodes an event job and hands
// the event to sink.
func DeliverHandler(sink events.Sink) Handler {
	return func(ctx context.Context, j *Job) error {
		var ev events.Event
		if err := json.Unmarshal(j.Payload, &ev); err != nil {
			return fmt.Errorf("decode event job %d: %w", j.ID, err)
		}
		return sink.Deliver(ctx, ev)
	}
}
