package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates what a scanned code points at.
type Kind string

const (
	KindProcess Kind = "process"
	KindTag     Kind = "tag"
)

// Target is a resolved QR payload.
type Target struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Kind, t.ID)
}

// Process is a monitored entity comprising multiple tags.
type Process struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Zone    string `json:"zone"`
	Tags    []Tag  `json:"tags"`
}

// Tag is a single measurement point with its latest records.
type Tag struct {
	Alias   string   `json:"alias"`
	Name    string   `json:"name"`
	Comment string   `json:"comment"`
	Unit    string   `json:"unit"`
	Status  float64  `json:"status"`
	Records []Record `json:"records"`
}

// Record is one timestamped measurement value.
type Record struct {
	Value   Value  `json:"value"`
	TimeOPC string `json:"time_opc"`
}

// UnmarshalJSON accepts the timestamp under any of the keys the API has used.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value     Value   `json:"value"`
		TimeOPC   *string `json:"time_opc"`
		TimeOpc   *string `json:"timeOpc"`
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Value = raw.Value
	switch {
	case raw.TimeOPC != nil:
		r.TimeOPC = *raw.TimeOPC
	case raw.TimeOpc != nil:
		r.TimeOPC = *raw.TimeOpc
	case raw.Timestamp != nil:
		r.TimeOPC = *raw.Timestamp
	default:
		r.TimeOPC = ""
	}
	return nil
}

// Value keeps the textual form of a reading, whether sent as a number or a string.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("record value: %w", err)
		}
		*v = Value(n.String())
	}
	return nil
}

// Snapshot is the header and tag list produced by one poll.
type Snapshot struct {
	Target    Target    `json:"target"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Zone      string    `json:"zone"`
	Tags      []Tag     `json:"tags"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ProcessSnapshot maps a process to its header fields and tags.
func ProcessSnapshot(target Target, p Process, at time.Time) Snapshot {
	return Snapshot{
		Target:    target,
		Title:     p.Name,
		Summary:   p.Comment,
		Zone:      p.Zone,
		Tags:      p.Tags,
		FetchedAt: at,
	}
}

// TagSnapshot wraps a single tag so it renders like a one-card process.
func TagSnapshot(target Target, t Tag, at time.Time) Snapshot {
	return Snapshot{
		Target:    target,
		Title:     t.Alias,
		Summary:   t.Comment,
		Zone:      t.Name,
		Tags:      []Tag{t},
		FetchedAt: at,
	}
}
