package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wiimwatch/internal/api"
	"wiimwatch/internal/models"
	"wiimwatch/internal/settings"
)

// State of the poll loop.
type State int

const (
	Idle State = iota
	Scheduled
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	default:
		return "idle"
	}
}

// Fetcher performs a single request for target.
type Fetcher interface {
	Fetch(ctx context.Context, ep api.Endpoint, target models.Target) (models.Snapshot, error)
}

// SettingsSource provides the settings in effect for the next cycle.
type SettingsSource interface {
	Current() settings.Settings
}

// Presenter receives poll results.
type Presenter interface {
	Present(models.Snapshot)
	Fail(error)
}

// Recorder observes fetches. It may be nil.
type Recorder interface {
	ObserveFetch(kind models.Kind, elapsed time.Duration, err error)
}

// Poller fetches a target, presents it, waits one interval and repeats until
// a fetch fails or its context is cancelled.
type Poller struct {
	target    models.Target
	fetcher   Fetcher
	settings  SettingsSource
	presenter Presenter
	recorder  Recorder
	logger    *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	state State
}

// New creates an idle poller.
func New(target models.Target, fetcher Fetcher, source SettingsSource, presenter Presenter, recorder Recorder, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target:    target,
		fetcher:   fetcher,
		settings:  source,
		presenter: presenter,
		recorder:  recorder,
		logger:    logger.With("target", target.String()),
		sleep:     sleepContext,
		state:     Idle,
	}
}

// State returns the current loop state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Run polls until ctx is cancelled or a fetch fails. A failed fetch is handed
// to the presenter and returned; cancellation returns ctx.Err() silently.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(Idle)

	for {
		snap, err := p.fetchOnce(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.logger.Warn("fetch failed, polling halted", "error", err)
			p.setState(Idle)
			p.presenter.Fail(err)
			return err
		}

		p.presenter.Present(snap)

		interval := p.settings.Current().Interval()
		p.setState(Scheduled)
		p.logger.Debug("next fetch scheduled", "in", interval, "tags", len(snap.Tags))

		if err := p.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context) (models.Snapshot, error) {
	cur := p.settings.Current()
	started := time.Now()

	snap, err := p.fetcher.Fetch(ctx, api.Endpoint{BaseURL: cur.ServerAddress, APIKey: cur.APIKey}, p.target)
	if p.recorder != nil && !errors.Is(err, context.Canceled) {
		p.recorder.ObserveFetch(p.target.Kind, time.Since(started), err)
	}
	return snap, err
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
