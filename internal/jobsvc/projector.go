package jobsvc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/restorecp/rcs/internal/snapshot"
)

// Projector is an async, buffered cross-service event writer. Entries are
// sent to an internal channel and flushed by a background goroutine, the
// same buffer/ticker/batch idiom as a conventional audit log writer, applied
// here to the job_event_projection_state snapshot document instead of a
// dedicated audit table.
type Projector struct {
	store   snapshot.Store
	logger  *slog.Logger
	entries chan CrossServiceEvent
	wg      sync.WaitGroup
}

const (
	projectorBufferSize    = 256
	projectorFlushInterval = 2 * time.Second
	projectorFlushBatch    = 32
)

// NewProjector creates a Projector. Call Start to begin processing entries.
func NewProjector(store snapshot.Store, logger *slog.Logger) *Projector {
	return &Projector{
		store:   store,
		logger:  logger,
		entries: make(chan CrossServiceEvent, projectorBufferSize),
	}
}

// Start launches the background flush loop in its own goroutine and returns
// at once. The loop exits, after flushing pending entries, when ctx is
// cancelled or Close is called.
func (p *Projector) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (p *Projector) Close() {
	close(p.entries)
	p.wg.Wait()
}

// Project enqueues a cross-service event. It never blocks the caller; if the
// buffer is full the entry is dropped and a warning is logged.
func (p *Projector) Project(e CrossServiceEvent) {
	select {
	case p.entries <- e:
	default:
		p.logger.Warn("cross-service event projection buffer full, dropping entry",
			"job_id", e.JobID, "action", e.Action)
	}
}

func (p *Projector) run(ctx context.Context) {
	ticker := time.NewTicker(projectorFlushInterval)
	defer ticker.Stop()

	batch := make([]CrossServiceEvent, 0, projectorFlushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-p.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= projectorFlushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-p.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *Projector) flush(batch []CrossServiceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := snapshot.MutateTyped(ctx, p.store, projectionStoreKey, func(doc *projectionDoc) error {
		doc.Events = append(doc.Events, batch...)
		if overflow := len(doc.Events) - maxProjectionEvents; overflow > 0 {
			doc.Events = doc.Events[overflow:]
		}
		return nil
	})
	if err != nil {
		p.logger.Error("flushing cross-service event projection", "error", err, "count", len(batch))
	}
}
