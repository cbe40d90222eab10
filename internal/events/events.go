// Package events defines the domain events the engine emits after a
// transaction commits and the sinks that receive them.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	// KindTransition is the audit record: one per entity state change.
	KindTransition        Kind = "transition"
	KindReserved          Kind = "reserved"
	KindContractCreated   Kind = "contract_created"
	KindPaymentCompleted  Kind = "payment_completed"
	KindExpired           Kind = "expired"
	KindCancelled         Kind = "cancelled"
	KindContractCompleted Kind = "contract_completed"
	KindProposalApproved  Kind = "proposal_approved"
	KindProposalRejected  Kind = "proposal_rejected"
)

// Entity names used in Event.Entity.
const (
	EntityWorker      = "worker"
	EntityReservation = "reservation"
	EntityContract    = "contract"
	EntityPayment     = "payment_session"
	EntityRequest     = "recruitment_request"
	EntityProposal    = "proposal"
)

type Event struct {
	Kind     Kind             `json:"kind"`
	Entity   string           `json:"entity"`
	EntityID int64            `json:"entity_id"`
	From     string           `json:"from,omitempty"`
	To       string           `json:"to,omitempty"`
	Actor    string           `json:"actor"`
	At       time.Time        `json:"at"`
	Refs     map[string]int64 `json:"refs,omitempty"`
}

// Publisher hands committed events to the outside world. Implementations
// deal with their own failures; the engine never sees an error from them.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event)
}

// Sink receives a single event. Errors are reported so a caller with a
// retry policy can act on them.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkPublisher publishes straight to a sink and logs delivery failures.
type SinkPublisher struct {
	sink   Sink
	logger *slog.Logger
}

func NewSinkPublisher(sink Sink, logger *slog.Logger) *SinkPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SinkPublisher{sink: sink, logger: logger}
}

func (p *SinkPublisher) Publish(ctx context.Context, evs ...Event) {
	for _, ev := range evs {
		if err := p.sink.Deliver(ctx, ev); err != nil {
			p.logger.Error("deliver event", "kind", ev.Kind, "entity", ev.Entity, "id", ev.EntityID, "err", err)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, ...Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evs ...Event) {
	r.mu.Lock()
	r.events = append(r.events, evs...)
	r.mu.Unlock()
}

func (r *Recorder) Deliver(ctx context.Context, ev Event) error {
	r.Publish(ctx, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have the given kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
