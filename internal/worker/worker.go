// Package worker drives the periodic sync loop: one goroutine per site,
// each alternating an incident pass and a note-matching pass on a fixed
// interval.
package worker

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihoon2park/falltrack/internal/sync"
)

// Runner is the slice of the syncer the worker drives.
type Runner interface {
	SyncIncidents(ctx context.Context, site string, full bool) (sync.Result, error)
	MatchNotes(ctx context.Context, site string) (int, error)
}

type Worker struct {
	runner   Runner
	sites    []string
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

func New(runner Runner, sites []string, interval time.Duration, log zerolog.Logger) *Worker {
	return &Worker{runner: runner, sites: sites, interval: interval, log: log}
}

// Start launches one loop per site. Each loop runs an immediate first pass,
// then ticks on the configured interval until Stop or context cancellation.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for _, site := range w.sites {
		w.wg.Add(1)
		go w.runSite(ctx, site)
	}
	w.log.Info().Strs("sites", w.sites).Dur("interval", w.interval).Msg("sync workers started")
}

// Stop cancels all site loops and waits for in-flight passes to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info().Msg("sync workers stopped")
}

func (w *Worker) runSite(ctx context.Context, site string) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pass(ctx, site)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pass(ctx, site)
		}
	}
}

// pass runs one sync cycle for a site. Failures are logged and swallowed:
// the cursor design means the next tick simply retries the same window.
func (w *Worker) pass(ctx context.Context, site string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Str("site", site).Interface("panic", r).Msg("sync pass panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}
	if _, err := w.runner.SyncIncidents(ctx, site, false); err != nil {
		w.log.Error().Str("site", site).Err(err).Msg("incident sync pass failed")
	}
	if ctx.Err() != nil {
		return
	}
	if _, err := w.runner.MatchNotes(ctx, site); err != nil {
		w.log.Error().Str("site", site).Err(err).Msg("note matching pass failed")
	}
}
