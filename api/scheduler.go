/*
scheduler.go - Time-advance worker for reservation lifecycles

PURPOSE:
  Periodically moves PAID reservations whose start has passed to ACTIVE and
  ACTIVE reservations whose end has passed to COMPLETED. Completion is what
  releases a slot's window for rebooking, so the worker is the only thing
  standing between a finished reservation and its slot staying blocked.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass delegates to Engine.AdvanceReservations, which takes the
    per-slot locks itself; the worker holds no locks of its own
  - A pass that fails logs and waits for the next tick; transitions already
    applied stay applied (each is independently atomic)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAdvanceScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - core/engine.go: AdvanceReservations
  - core/status.go: The begin/complete transitions this worker drives
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/openlot/parkcore/core"
)

// AdvanceScheduler drives the timed part of the reservation lifecycle.
type AdvanceScheduler struct {
	Engine        *core.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAdvanceScheduler creates a new scheduler.
func NewAdvanceScheduler(engine *core.Engine) *AdvanceScheduler {
	return &AdvanceScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AdvanceScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AdvanceScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AdvanceScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.checkAndAdvance()

	for {
		select {
		case <-as.ticker.C:
			as.checkAndAdvance()
		case <-as.stop:
			return
		}
	}
}

func (as *AdvanceScheduler) checkAndAdvance() {
	ctx := context.Background()
	now := as.Engine.Clock()

	advanced, err := as.Engine.AdvanceReservations(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Error advancing reservations: %v", err)
		return
	}
	if advanced > 0 {
		log.Printf("[Scheduler] Advanced %d reservation(s) at %v", advanced, now.UTC().Format(time.RFC3339))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (as *AdvanceScheduler) RunNow() {
	as.checkAndAdvance()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (as *AdvanceScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(as.CheckInterval)
}
