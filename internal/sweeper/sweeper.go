// Package sweeper removes booth subcollection documents whose booth is gone.
package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/logging"
	"photobox/internal/metrics"
	"photobox/internal/store"
)

var ErrAlreadyRunning = errors.New("sweep already running")

type Config struct {
	BatchSize   int
	Collections []string
}

type Result struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
}

type Sweeper struct {
	store       store.Store
	batchSize   int
	collections []string
	running     int32
}

func New(st store.Store, cfg Config) *Sweeper {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 200
	}
	collections := cfg.Collections
	if len(collections) == 0 {
		collections = []string{docpath.Vouchers, docpath.Backgrounds}
	}
	return &Sweeper{store: st, batchSize: batch, collections: collections}
}

// Run makes one pass over every configured collection group. Concurrent
// calls return ErrAlreadyRunning.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		metrics.SweeperRuns.WithLabelValues("skipped").Inc()
		return Result{}, ErrAlreadyRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	var total Result
	booths := make(map[string]bool)
	for _, collection := range s.collections {
		res, err := s.sweep(ctx, collection, booths)
		total.Scanned += res.Scanned
		total.Deleted += res.Deleted
		if err != nil {
			metrics.SweeperRuns.WithLabelValues("error").Inc()
			return total, err
		}
	}
	metrics.SweeperRuns.WithLabelValues("ok").Inc()
	metrics.SweeperDeleted.Add(float64(total.Deleted))
	if total.Deleted > 0 {
		logging.Info().Int("scanned", total.Scanned).Int("deleted", total.Deleted).Msg("orphan sweep finished")
	}
	return total, nil
}

func (s *Sweeper) sweep(ctx context.Context, collection string, booths map[string]bool) (Result, error) {
	var res Result
	after := ""
	for {
		page, err := s.store.ListGroup(ctx, collection, after, s.batchSize)
		if err != nil {
			return res, err
		}
		for _, doc := range page {
			res.Scanned++
			after = doc.Path.String()
			booth := doc.Path.Parent().Parent()
			if _, ok := booth.Booth(); !ok {
				continue
			}
			exists, err := s.boothExists(ctx, booth, booths)
			if err != nil {
				return res, err
			}
			if exists {
				continue
			}
			if err := s.store.Delete(ctx, doc.Path); err != nil {
				return res, err
			}
			res.Deleted++
			logging.Debug().Str("path", doc.Path.String()).Msg("orphan removed")
		}
		if len(page) < s.batchSize {
			return res, nil
		}
	}
}

func (s *Sweeper) boothExists(ctx context.Context, booth docpath.Path, cache map[string]bool) (bool, error) {
	if exists, ok := cache[booth.String()]; ok {
		return exists, nil
	}
	_, err := s.store.Get(ctx, booth)
	switch {
	case err == nil:
		cache[booth.String()] = true
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		cache[booth.String()] = false
		return false, nil
	default:
		return false, err
	}
}

func Start(ctx context.Context, interval time.Duration, s *Sweeper) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				logging.Error().Err(err).Msg("orphan sweep failed")
			}
		}
	}
}
