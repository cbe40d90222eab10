// Package engine coordinates worker reservations, contracts, payment
// sessions and proposal allocation on top of the state store.
//
// Every operation reads its timeouts once at the start, runs its reads and
// writes in one store transaction, and publishes the resulting events only
// after that transaction commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/staffing/internal/clock"
	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/internal/observability"
	"github.com/garnizeh/staffing/pkg/repository"
)

// SystemActor is recorded on transitions the sweeper makes.
const SystemActor = "system:sweeper"

// OTPSender enqueues a one-time code for delivery to a phone.
type OTPSender interface {
	Send(ctx context.Context, phone, code string) error
}

// Deps are the collaborators an Engine is built from. Store and OTP are
// required; New fills in defaults for the rest.
type Deps struct {
	Store       repository.Store
	Clock       clock.Clock
	Config      *config.Live
	Publisher   events.Publisher
	OTP         OTPSender
	Instruments *observability.Instruments
	Logger      *slog.Logger

	BcryptCost int
	// AllowBypass enables the fixed test code in builds tagged otpbypass.
	AllowBypass    bool
	SweepBatchSize int
}

// Engine groups the components that share one store and clock.
type Engine struct {
	Reservations *Coordinator
	Contracts    *Contracts
	Payments     *Payments
	Sweeper      *Sweeper
	Allocation   *Allocation
}

type core struct {
	store  repository.Store
	clock  clock.Clock
	cfg    *config.Live
	pub    events.Publisher
	inst   *observability.Instruments
	logger *slog.Logger
}

// New wires the reservation, contract, payment, sweeper and allocation
// components over one store. Unset clock, config and publisher default to
// the real clock, DefaultTimeouts and a no-op publisher.
func New(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Config == nil {
		d.Config = config.NewLive(config.DefaultTimeouts())
	}
	if d.Publisher == nil {
		d.Publisher = events.Discard{}
	}
	if d.Instruments == nil {
		d.Instruments = observability.Noop()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.OTP == nil {
		return nil, fmt.Errorf("engine: otp sender is required")
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = bcrypt.DefaultCost
	}

	c := &core{
		store:  d.Store,
		clock:  d.Clock,
		cfg:    d.Config,
		pub:    d.Publisher,
		inst:   d.Instruments,
		logger: d.Logger.With("component", "engine"),
	}
	contracts := &Contracts{core: c}
	return &Engine{
		Reservations: &Coordinator{core: c},
		Contracts:    contracts,
		Payments: &Payments{
			core:        c,
			contracts:   contracts,
			otp:         d.OTP,
			bcryptCost:  d.BcryptCost,
			allowBypass: d.AllowBypass,
		},
		Sweeper:    newSweeper(c, d.SweepBatchSize),
		Allocation: &Allocation{core: c},
	}, nil
}

// publish hands the batch to the publisher and records its metrics.
func (c *core) publish(ctx context.Context, b *batch) {
	if len(b.evs) == 0 {
		return
	}
	for _, ev := range b.evs {
		switch ev.Kind {
		case events.KindTransition:
			c.inst.Transition(ctx, ev.Entity, ev.To)
		case events.KindExpired:
			c.inst.Expired(ctx, ev.Entity)
		}
	}
	c.pub.Publish(ctx, b.evs...)
}

// conflict logs a cross-entity inconsistency and returns it as ErrStateConflict.
func (c *core) conflict(ctx context.Context, op string, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	c.logger.ErrorContext(ctx, "state conflict", "op", op, "detail", msg)
	return fmt.Errorf("%s: %s: %w", op, msg, ErrStateConflict)
}

// batch collects the events of one transaction.
type batch struct {
	now   time.Time
	actor string
	evs   []events.Event
}

func newBatch(now time.Time, actor string) *batch {
	return &batch{now: now, actor: actor}
}

func (b *batch) transition(entity string, id int64, from, to string, refs map[string]int64) {
	b.evs = append(b.evs, events.Event{
		Kind:     events.KindTransition,
		Entity:   entity,
		EntityID: id,
		From:     from,
		To:       to,
		Actor:    b.actor,
		At:       b.now,
		Refs:     refs,
	})
}

func (b *batch) emit(kind events.Kind, entity string, id int64, refs map[string]int64) {
	b.evs = append(b.evs, events.Event{
		Kind:     kind,
		Entity:   entity,
		EntityID: id,
		Actor:    b.actor,
		At:       b.now,
		Refs:     refs,
	})
}

// settle turns a compare-and-set that lost inside a transaction into a
// logged state conflict. Row locks make that unreachable unless two
// writers bypass them.
func (c *core) settle(ctx context.Context, op string, err error) error {
	if err != nil && errors.Is(err, errLostRace) {
		return c.conflict(ctx, op, "%v", err)
	}
	return err
}
