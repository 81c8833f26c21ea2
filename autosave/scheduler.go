// ABOUTME: Interval-driven durable persistence gated by leader election
// ABOUTME: Skips unchanged payloads; a failed save retries on the next tick
package autosave

import (
	"bytes"
	"context"
	"log"
	"sync"
	"time"

	"github.com/harperreed/mural/board"
	"github.com/harperreed/mural/models"
)

// DefaultInterval is the save cadence when the user has not overridden
// it in settings.
const DefaultInterval = 5 * time.Second

// Saver is the durable persistence collaborator.
type Saver interface {
	Save(ctx context.Context, doc *models.Document) error
}

// Scheduler periodically flushes the document to durable storage, but
// only from the current leader, so N connected clients produce one
// save per tick, not N. Leadership is advisory: a brief dual-leader
// window during membership churn just produces an extra idempotent
// save.
type Scheduler struct {
	store    *board.Store
	saver    Saver
	isLeader func(ctx context.Context) bool
	interval time.Duration

	mu        sync.Mutex
	lastSaved []byte
}

// New creates a scheduler. isLeader is evaluated fresh on every tick.
func New(store *board.Store, saver Saver, isLeader func(ctx context.Context) bool, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    store,
		saver:    saver,
		isLeader: isLeader,
		interval: interval,
	}
}

// Run ticks until the context is canceled, then makes one final flush
// attempt so a clean shutdown does not lose the last edits.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.Tick(flushCtx); err != nil {
				log.Printf("autosave: final flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Printf("autosave: save failed: %v", err)
			}
		}
	}
}

// Tick runs one scheduler evaluation: leadership check, change check,
// save. A save failure leaves the document status "unsaved"; there is
// no immediate retry or backoff; the next tick is the retry.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.isLeader(ctx) {
		return nil
	}

	doc := s.store.Document()
	payload, err := doc.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	unchanged := bytes.Equal(payload, s.lastSaved)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	s.store.SetStatus(board.StatusSaving)
	if err := s.saver.Save(ctx, doc); err != nil {
		s.store.SetStatus(board.StatusUnsaved)
		return err
	}

	s.mu.Lock()
	s.lastSaved = payload
	s.mu.Unlock()
	s.store.SetStatus(board.StatusSaved)
	return nil
}

// MarkSaved primes the change detector with an already-persisted
// payload, e.g. after loading a board from durable storage.
func (s *Scheduler) MarkSaved(doc *models.Document) {
	payload, err := doc.Marshal()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastSaved = payload
	s.mu.Unlock()
}
