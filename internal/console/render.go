// Package console draws the detail screen on a terminal and runs the error
// dialog on stdin.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"wiimwatch/internal/view"
)

// Renderer redraws the whole screen on every change.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewRenderer writes screens to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Redraw implements view.Listener.
func (r *Renderer) Redraw(state view.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = Render(r.out, state)
}

// Render writes one frame of state to w.
func Render(w io.Writer, state view.State) error {
	var b strings.Builder

	title := state.Header.Title
	if title == "" {
		title = state.Target.String()
	}
	fmt.Fprintf(&b, "== %s ==\n", title)
	if state.Header.Summary != "" {
		fmt.Fprintf(&b, "   %s\n", state.Header.Summary)
	}
	if state.Header.Zone != "" {
		fmt.Fprintf(&b, "   [%s]\n", state.Header.Zone)
	}
	if state.Loading {
		b.WriteString("   loading...\n")
	}

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, row := range state.Rows {
		fmt.Fprintf(tw, " %s\t%s\t%s %s\t%s\n", row.Face.Glyph(), row.Title, row.Value, row.Unit, row.Time)
		if row.Summary != "" {
			fmt.Fprintf(tw, " \t  %s\t\t\n", row.Summary)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !state.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "-- updated %s --\n", state.UpdatedAt.Local().Format("15:04:05"))
	}
	if state.Halted() {
		fmt.Fprintf(&b, "\n!! Error: %s\n", state.Error)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
