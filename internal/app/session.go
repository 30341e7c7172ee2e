package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"wiimwatch/internal/console"
	"wiimwatch/internal/models"
	"wiimwatch/internal/monitor"
	"wiimwatch/internal/mqtt"
	"wiimwatch/internal/settings"
	"wiimwatch/internal/view"
)

// ErrExitRequested is returned by Run when the user chose to exit from the error dialog.
var ErrExitRequested = errors.New("exit requested from error dialog")

type action int

const (
	actionExit action = iota + 1
	actionResume
)

// Options wires a session together. Forwarder, Prompter and Recorder are optional.
type Options struct {
	Target    models.Target
	Store     *settings.Store
	Fetcher   monitor.Fetcher
	Screen    *view.Screen
	Recorder  monitor.Recorder
	Forwarder *mqtt.Forwarder
	Prompter  *console.Prompter
	Logger    *slog.Logger
}

// Session owns the poll loop for one scanned target and the recovery flow
// after a failed fetch.
type Session struct {
	opts    Options
	logger  *slog.Logger
	actions chan action

	mu     sync.Mutex
	halted bool
}

// New creates a session. Call Run to start polling.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:    opts,
		logger:  logger,
		actions: make(chan action, 1),
	}
}

// Run polls until ctx is done or the user exits. It returns nil on
// cancellation and ErrExitRequested on exit.
func (s *Session) Run(ctx context.Context) error {
	if s.opts.Forwarder != nil {
		go func() {
			if err := s.opts.Forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("mqtt forwarder stopped", "error", err)
			}
		}()
	}

	poller := monitor.New(s.opts.Target, s.opts.Fetcher, s.opts.Store, s.presenter(), s.opts.Recorder, s.logger)

	for {
		err := poller.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}

		dialogCtx, cancelDialog := context.WithCancel(ctx)
		if s.opts.Prompter != nil {
			go s.dialog(dialogCtx, err)
		}

		select {
		case <-ctx.Done():
			cancelDialog()
			return nil
		case a := <-s.actions:
			cancelDialog()
			if a == actionExit {
				s.logger.Info("exit requested")
				return ErrExitRequested
			}
			s.logger.Info("resuming polling", "server", s.opts.Store.Current().ServerAddress)
			s.opts.Screen.Loading()
		}
	}
}

// Halted reports whether the error dialog is waiting for an answer.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// RequestExit answers the error dialog with exit. It reports false when no
// dialog is open.
func (s *Session) RequestExit() bool {
	return s.act(actionExit)
}

// Resume answers the error dialog by polling again with the current settings.
func (s *Session) Resume() bool {
	return s.act(actionResume)
}

// Settings returns the settings in effect.
func (s *Session) Settings() settings.Settings {
	return s.opts.Store.Current()
}

// UpdateSettings persists next. A halted session resumes with it; a running
// one picks it up on its next cycle.
func (s *Session) UpdateSettings(next settings.Settings) error {
	if err := s.opts.Store.Update(next); err != nil {
		return err
	}
	s.Resume()
	return nil
}

func (s *Session) act(a action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.halted {
		return false
	}
	s.halted = false
	s.actions <- a
	return true
}

func (s *Session) setHalted(v bool) {
	s.mu.Lock()
	s.halted = v
	s.mu.Unlock()
}

func (s *Session) dialog(ctx context.Context, cause error) {
	choice, err := s.opts.Prompter.Ask(ctx, cause.Error())
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			s.logger.Warn("error dialog aborted", "error", err)
		}
		return
	}

	switch choice {
	case console.ChoiceExit:
		s.RequestExit()
	case console.ChoiceSettings:
		next, err := s.opts.Prompter.EditSettings(ctx, s.opts.Store.Current())
		if err != nil {
			return
		}
		if err := s.UpdateSettings(next); err != nil {
			s.logger.Error("save settings", "error", err)
		}
	}
}

func (s *Session) presenter() monitor.Presenter {
	return &fanout{session: s, screen: s.opts.Screen, forwarder: s.opts.Forwarder, target: s.opts.Target}
}

// fanout hands poll results to the screen and, if configured, the broker.
type fanout struct {
	session   *Session
	screen    *view.Screen
	forwarder *mqtt.Forwarder
	target    models.Target
}

func (f *fanout) Present(snap models.Snapshot) {
	f.screen.Present(snap)
	if f.forwarder != nil {
		f.forwarder.Present(snap)
	}
}

func (f *fanout) Fail(err error) {
	// Halt before redrawing so an answer given from the redraw is accepted.
	f.session.setHalted(true)
	f.screen.Fail(err)
	if f.forwarder != nil {
		f.forwarder.Failure(f.target, err)
	}
}
