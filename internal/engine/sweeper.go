package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/garnizeh/staffing/internal/events"
	"github.com/garnizeh/staffing/pkg/models"
	"github.com/garnizeh/staffing/pkg/repository"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Reservations int `json:"reservations"`
	Sessions     int `json:"sessions"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Sweeper expires lapsed reservations and payment sessions. Sweeps may run
// concurrently on several replicas; every write is state-guarded, so an
// entity is expired at most once.
type Sweeper struct {
	*core
	batchSize int

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func newSweeper(c *core, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{core: c, batchSize: batchSize}
}

var errSkip = errors.New("skip")

// RunOnce performs one sweep. Candidates are listed outside any
// transaction; each is then expired in its own transaction after its state
// is read again. Failures on one entity are logged and do not stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (_ SweepResult, err error) {
	ctx, done := s.inst.Track(ctx, "sweep")
	defer func() { done(err) }()

	var result SweepResult
	now := s.clock.Now()

	reservations, err := s.store.ListExpiredReservations(ctx, now, s.batchSize)
	if err != nil {
		return result, err
	}
	for _, cand := range reservations {
		b := newBatch(now, SystemActor)
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.GetWorker(ctx, cand.WorkerID); err != nil {
				return err
			}
			res, err := tx.GetReservation(ctx, cand.ID)
			if err != nil {
				return err
			}
			if res == nil || res.State.Terminal() || !res.Expired(now) {
				return errSkip
			}
			return s.endChain(ctx, tx, b, res, endExpire)
		})
		s.tally(ctx, &result.Reservations, &result, b, err, "reservation", cand.ID)
	}

	sessions, err := s.store.ListExpiredPaymentSessions(ctx, now, s.batchSize)
	if err != nil {
		return result, err
	}
	for _, cand := range sessions {
		b := newBatch(now, SystemActor)
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			ps, err := tx.GetPaymentSession(ctx, cand.ID)
			if err != nil {
				return err
			}
			if ps == nil || ps.Status != models.PaymentPending || !ps.Expired(now) {
				return errSkip
			}
			if err := movePayment(ctx, tx, b, ps, models.PaymentExpired); err != nil {
				return err
			}
			b.emit(events.KindExpired, events.EntityPayment, ps.ID, map[string]int64{"contract": ps.ContractID})
			return nil
		})
		s.tally(ctx, &result.Sessions, &result, b, err, "payment_session", cand.ID)
	}

	if result.Reservations+result.Sessions > 0 || result.Failed > 0 {
		s.logger.InfoContext(ctx, "sweep finished",
			"reservations", result.Reservations,
			"sessions", result.Sessions,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}
	return result, nil
}

func (s *Sweeper) tally(ctx context.Context, counter *int, result *SweepResult, b *batch, err error, entity string, id int64) {
	switch {
	case err == nil:
		*counter++
		s.publish(ctx, b)
	case errors.Is(err, errSkip), errors.Is(err, errLostRace):
		// another writer got there first
		result.Skipped++
	default:
		result.Failed++
		s.logger.ErrorContext(ctx, "sweep entity", "entity", entity, "id", id, "err", err)
	}
}

// Start runs RunOnce every interval until Stop is called or ctx ends.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				s.logger.Info("sweeper stopping")
				return
			case <-ctx.Done():
				s.logger.Info("context canceled, sweeper exiting")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("sweep", "err", err)
				}
			}
		}
	}(s.stop)
}

// Stop signals the sweep loop to exit and waits for it.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}
