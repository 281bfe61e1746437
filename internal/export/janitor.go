package export

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/telemetry"
)

// Janitor periodically sweeps expired jobs out of the store and keeps
// the active-jobs gauge current.
type Janitor struct {
	store     *Store
	interval  time.Duration
	telemetry *telemetry.Provider
	log       logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewJanitor creates a janitor sweeping the store on the given interval.
func NewJanitor(store *Store, interval time.Duration, tel *telemetry.Provider, log logger.Logger) *Janitor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Janitor{
		store:     store,
		interval:  interval,
		telemetry: tel,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		j.log.Warn("export janitor already started")
		return
	}
	j.started = true

	j.log.Info("starting export janitor", logger.Duration("interval", j.interval))
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop halts the sweep loop and waits for it to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		return
	}

	j.log.Info("stopping export janitor")
	close(j.stopChan)
	j.wg.Wait()
	j.started = false
	j.log.Info("export janitor stopped")
}

// IsRunning returns whether the janitor is running.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) sweep() {
	removed := j.store.Sweep()
	j.telemetry.SetExportJobsActive(j.store.Active())
	if removed > 0 {
		j.log.Debug("swept expired export jobs",
			logger.Int("removed", removed),
			logger.Int("remaining", j.store.Len()))
	}
}
