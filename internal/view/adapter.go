package view

import (
	"errors"
	"fmt"
	"sync"

	"wiimwatch/internal/models"
)

// ErrNoRecords is returned when a tag has no reading to show.
var ErrNoRecords = errors.New("tag has no records")

// Face is the status icon shown on a card.
type Face string

const (
	FaceUnhappy Face = "unhappy"
	FaceHappy   Face = "happy"
	FaceNeutral Face = "neutral"
)

// Glyph returns a terminal-friendly rendering of the face.
func (f Face) Glyph() string {
	switch f {
	case FaceUnhappy:
		return ":("
	case FaceNeutral:
		return ":|"
	default:
		return ":)"
	}
}

// FaceFor picks the icon for a tag status. Values above 4 are neutral, not happy.
func FaceFor(status float64) Face {
	if status < 2.5 {
		return FaceUnhappy
	}
	if status > 4 {
		return FaceNeutral
	}
	return FaceHappy
}

// timePrefixLen covers "YYYY-MM-DD ".
const timePrefixLen = 11

// FormatTime drops the date prefix from an OPC timestamp.
func FormatTime(ts string) string {
	if len(ts) <= timePrefixLen {
		return ""
	}
	return ts[timePrefixLen:]
}

// Row is one rendered card.
type Row struct {
	Face    Face   `json:"face"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Value   string `json:"value"`
	Unit    string `json:"unit"`
	Time    string `json:"time"`
}

// Adapter maps tags to card rows.
type Adapter struct {
	mu   sync.RWMutex
	tags []models.Tag
}

// NewAdapter returns an adapter that starts empty.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Update replaces the backing list.
func (a *Adapter) Update(tags []models.Tag) {
	next := make([]models.Tag, len(tags))
	copy(next, tags)

	a.mu.Lock()
	a.tags = next
	a.mu.Unlock()
}

// ItemCount returns the number of cards.
func (a *Adapter) ItemCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tags)
}

// Bind renders the card at position from the tag's first record. A tag
// without records still yields its title row along with ErrNoRecords.
func (a *Adapter) Bind(position int) (Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if position < 0 || position >= len(a.tags) {
		return Row{}, fmt.Errorf("position %d out of range [0,%d)", position, len(a.tags))
	}
	return bindTag(a.tags[position])
}

// Rows renders every card in order.
func (a *Adapter) Rows() []Row {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows := make([]Row, 0, len(a.tags))
	for _, tag := range a.tags {
		row, _ := bindTag(tag)
		rows = append(rows, row)
	}
	return rows
}

func bindTag(tag models.Tag) (Row, error) {
	row := Row{
		Face:    FaceFor(tag.Status),
		Title:   tag.Alias,
		Summary: tag.Comment,
		Unit:    tag.Unit,
	}
	if len(tag.Records) == 0 {
		return row, fmt.Errorf("%s: %w", tag.Name, ErrNoRecords)
	}
	rec := tag.Records[0]
	row.Value = string(rec.Value)
	row.Time = FormatTime(rec.TimeOPC)
	return row, nil
}
