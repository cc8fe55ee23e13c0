package stats

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/umwelt-info/harvester/pkg/log"
)

const flushInterval = 60 * time.Second

// FlushScheduler periodically flushes a Store to disk (spec.md §5: "Stats
// counter ... flushed every 60 seconds by a background task"), using the
// teacher's gocron-based scheduling idiom (internal/taskManager) rather
// than a hand-rolled ticker goroutine.
type FlushScheduler struct {
	scheduler gocron.Scheduler
}

// StartFlushing builds and starts a scheduler that calls store.Flush every
// 60 seconds, logging (not failing) on error since a missed flush is
// recovered by the next tick or by the next process's Load.
func StartFlushing(store *Store) (*FlushScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(flushInterval),
		gocron.NewTask(func() {
			if err := store.Flush(); err != nil {
				log.Warnf("stats: periodic flush failed: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	scheduler.Start()
	return &FlushScheduler{scheduler: scheduler}, nil
}

// Shutdown stops the scheduler. Callers should Flush once more after
// Shutdown to avoid losing the interval since the last tick.
func (f *FlushScheduler) Shutdown() error {
	return f.scheduler.Shutdown()
}
