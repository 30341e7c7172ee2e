package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiimwatch/internal/models"
)

func TestFaceFor(t *testing.T) {
	tests := []struct {
		status float64
		want   Face
	}{
		{status: -1, want: FaceUnhappy},
		{status: 0, want: FaceUnhappy},
		{status: 2.49, want: FaceUnhappy},
		{status: 2.5, want: FaceHappy},
		{status: 3, want: FaceHappy},
		{status: 4, want: FaceHappy},
		{status: 4.0001, want: FaceNeutral},
		{status: 5, want: FaceNeutral},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FaceFor(tt.status), "FaceFor(%v)", tt.status)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2020-01-01 10:20:30", want: "10:20:30"},
		{in: "2020-01-01T10:20:30.123", want: "10:20:30.123"},
		{in: "2020-01-01 ", want: ""},
		{in: "10:20", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.in), "FormatTime(%q)", tt.in)
	}
}

func tag(alias string, status float64, value models.Value, ts string) models.Tag {
	return models.Tag{
		Alias:   alias,
		Name:    alias + "_N",
		Comment: alias + " comment",
		Unit:    "bar",
		Status:  status,
		Records: []models.Record{{Value: value, TimeOPC: ts}},
	}
}

func TestAdapterBind(t *testing.T) {
	a := NewAdapter()
	a.Update([]models.Tag{tag("P1", 1, "3.2", "2020-01-01 10:20:30")})

	row, err := a.Bind(0)
	require.NoError(t, err)
	assert.Equal(t, Row{
		Face:    FaceUnhappy,
		Title:   "P1",
		Summary: "P1 comment",
		Value:   "3.2",
		Unit:    "bar",
		Time:    "10:20:30",
	}, row)

	_, err = a.Bind(1)
	assert.Error(t, err)
	_, err = a.Bind(-1)
	assert.Error(t, err)
}

func TestAdapterBindWithoutRecords(t *testing.T) {
	a := NewAdapter()
	a.Update([]models.Tag{{Alias: "Empty", Name: "E1", Status: 3}})

	row, err := a.Bind(0)
	assert.True(t, errors.Is(err, ErrNoRecords))
	assert.Equal(t, "Empty", row.Title)
	assert.Empty(t, row.Value)
	assert.Empty(t, row.Time)

	rows := a.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, FaceHappy, rows[0].Face)
}

func TestAdapterUpdateReplaces(t *testing.T) {
	a := NewAdapter()
	a.Update([]models.Tag{tag("A", 3, "1", "2020-01-01 00:00:01"), tag("B", 3, "2", "2020-01-01 00:00:02")})
	require.Equal(t, 2, a.ItemCount())

	a.Update([]models.Tag{tag("C", 5, "3", "2020-01-01 00:00:03")})
	assert.Equal(t, 1, a.ItemCount())

	rows := a.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "C", rows[0].Title)
	assert.Equal(t, FaceNeutral, rows[0].Face)

	a.Update(nil)
	assert.Equal(t, 0, a.ItemCount())
	assert.Empty(t, a.Rows())
}

func TestAdapterUpdateCopiesInput(t *testing.T) {
	in := []models.Tag{tag("A", 3, "1", "2020-01-01 00:00:01")}
	a := NewAdapter()
	a.Update(in)

	in[0].Alias = "mutated"
	row, err := a.Bind(0)
	require.NoError(t, err)
	assert.Equal(t, "A", row.Title)
}
