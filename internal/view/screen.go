// Package view holds the detail screen: a header, a progress flag and a card
// list fed by the poller.
package view

import (
	"sync"
	"time"

	"wiimwatch/internal/models"
)

// Header is the collapsing toolbar content.
type Header struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Zone    string `json:"zone"`
}

// State is an immutable copy of everything a renderer needs.
type State struct {
	Session   string        `json:"session"`
	Target    models.Target `json:"target"`
	Header    Header        `json:"header"`
	Loading   bool          `json:"loading"`
	Error     string        `json:"error,omitempty"`
	Rows      []Row         `json:"rows"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Halted reports whether the screen is showing the error dialog.
func (s State) Halted() bool {
	return s.Error != ""
}

// Listener is told to redraw after every change.
type Listener interface {
	Redraw(State)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(State)

// Redraw implements Listener.
func (f ListenerFunc) Redraw(s State) { f(s) }

// Screen presents poll results.
type Screen struct {
	session string
	target  models.Target
	adapter *Adapter

	mu        sync.RWMutex
	header    Header
	loading   bool
	failure   string
	updatedAt time.Time
	listeners []Listener
}

// NewScreen creates a screen that shows progress until the first result.
func NewScreen(session string, target models.Target) *Screen {
	return &Screen{
		session: session,
		target:  target,
		adapter: NewAdapter(),
		loading: true,
	}
}

// Adapter exposes the card list.
func (s *Screen) Adapter() *Adapter {
	return s.adapter
}

// AddListener registers l for redraws.
func (s *Screen) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Present shows a successful poll result.
func (s *Screen) Present(snap models.Snapshot) {
	s.mu.Lock()
	s.header = Header{Title: snap.Title, Summary: snap.Summary, Zone: snap.Zone}
	s.loading = false
	s.failure = ""
	s.updatedAt = snap.FetchedAt
	s.adapter.Update(snap.Tags)
	s.mu.Unlock()

	s.notify()
}

// Fail shows the error dialog.
func (s *Screen) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	s.mu.Lock()
	s.loading = false
	s.failure = msg
	s.mu.Unlock()

	s.notify()
}

// Loading clears the error dialog and shows progress again.
func (s *Screen) Loading() {
	s.mu.Lock()
	s.loading = true
	s.failure = ""
	s.mu.Unlock()

	s.notify()
}

// State returns the current screen content.
func (s *Screen) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Screen) stateLocked() State {
	return State{
		Session:   s.session,
		Target:    s.target,
		Header:    s.header,
		Loading:   s.loading,
		Error:     s.failure,
		Rows:      s.adapter.Rows(),
		UpdatedAt: s.updatedAt,
	}
}

func (s *Screen) notify() {
	s.mu.RLock()
	state := s.stateLocked()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.Redraw(state)
	}
}
