package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IntervalUnit scales UpdateInterval into wall time.
const IntervalUnit = 100 * time.Millisecond

// DefaultUpdateInterval is five seconds expressed in IntervalUnit steps.
const DefaultUpdateInterval = 50

// ErrInvalid marks settings rejected by Validate.
var ErrInvalid = errors.New("invalid settings")

// Settings are the user-editable preferences of the detail screen.
type Settings struct {
	ServerAddress  string `json:"server_address"`
	UpdateInterval int    `json:"update_interval"`
	APIKey         string `json:"api_key,omitempty"`
}

// Interval returns the delay between two polls.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.UpdateInterval) * IntervalUnit
}

// Validate checks that the settings can drive a poll.
func (s Settings) Validate() error {
	addr := strings.TrimSpace(s.ServerAddress)
	if addr == "" {
		return fmt.Errorf("%w: server address is required", ErrInvalid)
	}
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("%w: server address: %v", ErrInvalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: server address must use http or https", ErrInvalid)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server address has no host", ErrInvalid)
	}
	if s.UpdateInterval <= 0 {
		return fmt.Errorf("%w: update interval must be positive", ErrInvalid)
	}
	return nil
}

// Merge overlays the non-zero fields of patch on s.
func (s Settings) Merge(patch Settings) Settings {
	if v := strings.TrimSpace(patch.ServerAddress); v != "" {
		s.ServerAddress = v
	}
	if patch.UpdateInterval != 0 {
		s.UpdateInterval = patch.UpdateInterval
	}
	if v := strings.TrimSpace(patch.APIKey); v != "" {
		s.APIKey = v
	}
	return s
}
