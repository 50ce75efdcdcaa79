package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/trustedcoder/typira-home/internal/atomizer"
	"github.com/trustedcoder/typira-home/internal/logging"
	"github.com/trustedcoder/typira-home/internal/models"
)

// FragmentWriter is the dedup store surface the ingestion engine writes to
type FragmentWriter interface {
	Upsert(ctx context.Context, userID, appContext, content, fingerprint string, now time.Time) error
	AbsorptionCandidate(ctx context.Context, userID, appContext string, since time.Time) (*models.TypingFragment, error)
	Absorb(ctx context.Context, id int64, content, fingerprint string, now time.Time) error
}

// Fingerprinter computes the intent fingerprint for a cleaned atom
type Fingerprinter interface {
	Fingerprint(ctx context.Context, cleaned string) (label, hash string)
}

// UsageAccumulator is the downstream usage-metrics sink. Implementations must
// be cheap and must never fail the caller.
type UsageAccumulator interface {
	RecordAtoms(userID string, count int)
	RecordAbsorption(userID string)
}

// IngestionService reduces incoming typing events to deduplicated intent
// fragments. Events for the same (user, app context) key are serialized
// through a dedicated worker so the absorption-window lookup always sees the
// effects of earlier events; distinct keys run fully in parallel.
type IngestionService struct {
	store        FragmentWriter
	fingerprints Fingerprinter
	accumulator  UsageAccumulator
	metrics      *Metrics

	window      time.Duration
	queueSize   int
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	queues  map[string]chan models.TypingEvent
	wg      sync.WaitGroup
	stopped bool
}

// NewIngestionService creates the ingestion engine. accumulator and metrics
// may be nil.
func NewIngestionService(store FragmentWriter, fingerprints Fingerprinter, accumulator UsageAccumulator, metrics *Metrics, window time.Duration, queueSize int) *IngestionService {
	if window <= 0 {
		window = 60 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &IngestionService{
		store:        store,
		fingerprints: fingerprints,
		accumulator:  accumulator,
		metrics:      metrics,
		window:       window,
		queueSize:    queueSize,
		idleTimeout:  5 * time.Minute,
		now:          time.Now,
		queues:       make(map[string]chan models.TypingEvent),
	}
}

// Enqueue hands an event to its per-key worker and returns immediately.
// Overflow drops the event: ingestion is fire-and-forget and must never
// block the caller's response path.
func (s *IngestionService) Enqueue(event models.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	queue, exists := s.queues[event.Key()]
	if !exists {
		queue = make(chan models.TypingEvent, s.queueSize)
		s.queues[event.Key()] = queue
		s.wg.Add(1)
		go s.worker(event.Key(), queue)
	}

	// The send stays under s.mu: Stop closes queues under the same lock,
	// so a close can never land between lookup and send. Non-blocking, so
	// the lock is held only for an instant either way.
	select {
	case queue <- event:
		if s.metrics != nil {
			s.metrics.IngestQueueDepth.Inc()
		}
	default:
		log.Printf("⚠️ [INGEST] Queue full for user %s, dropping event", event.UserID)
		if s.metrics != nil {
			s.metrics.IngestEvents.WithLabelValues("dropped").Inc()
		}
	}
}

// Stop closes all worker queues and waits until queued events are drained.
func (s *IngestionService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, queue := range s.queues {
		close(queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("✅ [INGEST] Ingestion workers drained")
}

// worker processes one key's events strictly in arrival order. A worker that
// sits idle past the idle timeout retires itself so goroutine count tracks
// active keys, not every key ever seen; the next event for the key simply
// spawns a fresh worker.
func (s *IngestionService) worker(key string, queue chan models.TypingEvent) {
	defer s.wg.Done()
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			s.process(event)
			if s.metrics != nil {
				s.metrics.IngestQueueDepth.Dec()
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)
		case <-idle.C:
			if s.retire(key, queue) {
				return
			}
			idle.Reset(s.idleTimeout)
		}
	}
}

// retire removes an idle worker's queue from the routing map. It refuses when
// an event slipped in before the lock was taken, or during shutdown where
// Stop owns the close.
func (s *IngestionService) retire(key string, queue chan models.TypingEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(queue) > 0 {
		return false
	}
	delete(s.queues, key)
	return true
}

// process runs the full atomize -> scrub -> absorb-or-upsert pipeline for a
// single event. Atoms are handled strictly sequentially; a failure on one
// atom never aborts its siblings.
func (s *IngestionService) process(event models.TypingEvent) {
	// Full-window snapshots exist only for downstream analysis reads.
	// Persisting them would duplicate every delta already stored.
	if event.IsFullSnapshot {
		if s.metrics != nil {
			s.metrics.IngestEvents.WithLabelValues("snapshot_skipped").Inc()
		}
		return
	}

	atoms := atomizer.Atomize(event.Text)
	if len(atoms) == 0 {
		return
	}

	ctx := context.Background()
	stored := 0
	absorbed := 0

	for i, atom := range atoms {
		cleaned := atomizer.ScrubPII(atom)
		if cleaned == "" {
			continue
		}

		if i == len(atoms)-1 && s.tryAbsorb(ctx, event, cleaned) {
			absorbed++
			continue
		}

		_, hash := s.fingerprints.Fingerprint(ctx, cleaned)
		if hash == "" {
			// No fingerprint, no row: partial entries would poison dedup.
			continue
		}

		if err := s.store.Upsert(ctx, event.UserID, event.AppContext, cleaned, hash, s.now()); err != nil {
			log.Printf("❌ [INGEST] Failed to upsert atom for user %s: %v", event.UserID, err)
			continue
		}
		stored++
	}

	if s.metrics != nil {
		s.metrics.IngestEvents.WithLabelValues("processed").Inc()
		s.metrics.AtomsProcessed.Add(float64(stored + absorbed))
	}
	logging.WithIngestion(event.UserID, event.AppContext).
		Debug("event processed", "atoms", len(atoms), "stored", stored, "absorbed", absorbed)
	if s.accumulator != nil {
		if stored+absorbed > 0 {
			s.accumulator.RecordAtoms(event.UserID, stored+absorbed)
		}
		for n := 0; n < absorbed; n++ {
			s.accumulator.RecordAbsorption(event.UserID)
		}
	}
}

// tryAbsorb implements expansion absorption for the last atom of an event:
// when the most recent fragment inside the window is a strict prefix of the
// new atom, the fragment is overwritten in place (content + recomputed
// fingerprint) with no frequency bump. "call mo" completed to "call mom"
// must not leave two rows for one evolving thought.
func (s *IngestionService) tryAbsorb(ctx context.Context, event models.TypingEvent, cleaned string) bool {
	now := s.now()
	candidate, err := s.store.AbsorptionCandidate(ctx, event.UserID, event.AppContext, now.Add(-s.window))
	if err != nil {
		log.Printf("⚠️ [INGEST] Absorption lookup failed for user %s: %v", event.UserID, err)
		return false
	}
	if candidate == nil {
		return false
	}
	if len(cleaned) <= len(candidate.Content) || !strings.HasPrefix(cleaned, candidate.Content) {
		return false
	}

	_, hash := s.fingerprints.Fingerprint(ctx, cleaned)
	if hash == "" {
		return false
	}

	if err := s.store.Absorb(ctx, candidate.ID, cleaned, hash, now); err != nil {
		// The atom is skipped, not retried as an insert: retrying could
		// leave both the stale prefix row and a new row for one thought.
		log.Printf("❌ [INGEST] Failed to absorb fragment %d: %v", candidate.ID, err)
		return true
	}

	if s.metrics != nil {
		s.metrics.FragmentsAbsorbed.Inc()
	}
	return true
}
