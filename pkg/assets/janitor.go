package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/gsbridge/pkg/logger"
)

// Janitor removes stale images from a Store on a cron schedule.
type Janitor struct {
	store    *Store
	schedule string
	maxAge   time.Duration
	now      func() time.Time
}

func NewJanitor(store *Store, schedule string, maxAge time.Duration) (*Janitor, error) {
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid cleanup schedule %q", schedule)
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		now:      time.Now,
	}, nil
}

// Run sweeps at every tick of the schedule until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.schedule, j.now(), false)
		if err != nil {
			logger.ErrorCF("assets", "Cannot compute next cleanup", map[string]any{
				"schedule": j.schedule,
				"error":    err.Error(),
			})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		removed, err := j.Sweep()
		if err != nil {
			logger.WarnCF("assets", "Cleanup incomplete", map[string]any{"error": err.Error()})
		}
		if removed > 0 {
			logger.InfoCF("assets", "Removed stale images", map[string]any{"count": removed})
		}
	}
}

// Sweep deletes images whose modification time is older than maxAge and
// returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.store.imageDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.store.imageDir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
