package game

import (
	"context"
	"log"
	"time"

	"altitude/internal/config"
)

const (
	createRetryBackoff    = 500 * time.Millisecond
	createRetryBackoffMax = 5 * time.Second
)

// Archiver persists finalized rounds for historical reads. Archival is
// best effort; a write failure never blocks the next round.
type Archiver interface {
	SaveRound(ctx context.Context, round *Round) error
}

// Scheduler drives rounds through WAITING -> ACTIVE -> CRASHED on its
// own timers, independent of request handling. It owns round creation
// and finalization; all contention with concurrent wager and withdrawal
// calls is resolved by the store's compare-and-set primitives.
type Scheduler struct {
	store    *RoundStore
	gen      Generator
	events   Broadcaster
	archiver Archiver
	cfg      *config.Config

	stopChan chan struct{}
	nonce    int
}

func NewScheduler(store *RoundStore, events Broadcaster, archiver Archiver, cfg *config.Config) *Scheduler {
	if events == nil {
		events = NopBroadcaster{}
	}
	return &Scheduler{
		store:    store,
		gen:      Generator{HouseEdge: cfg.Game.HouseEdge, MaxCrash: cfg.Game.MaxCrash},
		events:   events,
		archiver: archiver,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.stopChan:
			log.Println("[GAME] Scheduler stopped")
			return
		default:
			s.runRound()
		}
	}
}

// runRound executes one full round cycle.
func (s *Scheduler) runRound() {
	round := s.createRound()
	if round == nil {
		return // stopping
	}

	log.Printf("=== ROUND %s ===", round.ID)
	log.Printf("[FAIR] Hash: %s...", round.Hash[:16])
	log.Printf("[FAIR] Crash point: %.2fx (concealed)", round.CrashMultiplier)

	s.events.Publish(RoundCreatedEvent{
		RoundID:   round.ID,
		StartTime: round.CreatedAt,
		Hash:      round.Hash,
	})

	if !s.sleep(s.cfg.Game.WagerWindow) {
		return
	}

	if !s.store.Transition(round.ID, StatusWaiting, StatusActive) {
		// Only possible if the round was torn down underneath us;
		// a programming defect, not a runtime condition to recover.
		log.Printf("[GAME] Round %s could not activate, abandoning cycle", round.ID)
		return
	}

	active, ok := s.store.Current()
	if !ok {
		return
	}

	s.events.Publish(RoundActivatedEvent{
		RoundID:   round.ID,
		StartTime: active.ActivatedAt,
	})

	s.tickUntilCrash(active)

	s.sleep(s.cfg.Game.Cooldown)
}

// createRound keeps retrying with backoff until a round exists. The
// scheduler must never stop producing rounds on one transient failure.
func (s *Scheduler) createRound() *Round {
	backoff := createRetryBackoff
	for {
		s.nonce++
		id := NewRoundID(s.nonce)
		seed := GenerateSeed()

		crash, hash, err := s.gen.Generate(seed, id)
		if err == nil {
			var round *Round
			round, err = s.store.CreateRound(id, seed, crash, hash)
			if err == nil {
				return round
			}
		}

		log.Printf("[GAME] Round creation failed, retrying in %s: %v", backoff, err)
		if !s.sleep(backoff) {
			return nil
		}
		backoff *= 2
		if backoff > createRetryBackoffMax {
			backoff = createRetryBackoffMax
		}
	}
}

// tickUntilCrash advances the multiplier until it reaches the concealed
// crash point or the round hits its maximum duration.
func (s *Scheduler) tickUntilCrash(round *Round) {
	ticker := time.NewTicker(s.cfg.Game.TickInterval)
	defer ticker.Stop()

	maxMillis := s.cfg.Game.MaxRoundDuration.Milliseconds()

	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(round.ActivatedAt).Milliseconds()
			mult := MultiplierAt(elapsed, s.cfg.Game.GrowthFactor)

			if mult >= round.CrashMultiplier || elapsed >= maxMillis {
				final := mult
				if final > round.CrashMultiplier {
					final = round.CrashMultiplier
				}
				s.finalize(round, final)
				return
			}

			s.store.UpdateMultiplier(round.ID, mult)
			s.events.Publish(MultiplierTickEvent{
				RoundID:       round.ID,
				Multiplier:    mult,
				ElapsedMillis: elapsed,
			})

		case <-s.stopChan:
			// Finalize so open wagers do not dangle across shutdown.
			s.finalize(round, round.CurrentMultiplier)
			return
		}
	}
}

func (s *Scheduler) finalize(round *Round, finalMultiplier float64) {
	final, err := s.store.Finalize(round.ID)
	if err != nil {
		log.Printf("[GAME] Finalize %s: %v", round.ID, err)
		return
	}

	log.Printf("=== ROUND %s ENDED at %.2fx (wagered %.2f, paid %.2f) ===",
		final.ID, final.CrashMultiplier, final.Aggregates.TotalWagered, final.Aggregates.TotalPaidOut)

	s.events.Publish(RoundCrashedEvent{
		RoundID:         final.ID,
		CrashMultiplier: final.CrashMultiplier,
		FinalMultiplier: finalMultiplier,
		Seed:            final.Seed,
		Aggregates:      final.Aggregates,
	})

	if s.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.archiver.SaveRound(ctx, final); err != nil {
			log.Printf("[GAME] Archive %s: %v", final.ID, err)
		}
	}
}

// sleep waits for d, returning false when the scheduler is stopping.
func (s *Scheduler) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopChan:
		return false
	}
}
