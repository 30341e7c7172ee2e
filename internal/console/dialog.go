package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"wiimwatch/internal/settings"
)

// Choice is the user's answer to the error dialog.
type Choice int

const (
	ChoiceExit Choice = iota + 1
	ChoiceSettings
)

func (c Choice) String() string {
	switch c {
	case ChoiceExit:
		return "exit"
	case ChoiceSettings:
		return "settings"
	default:
		return "none"
	}
}

// Prompter reads answers line by line. Reads never outlive the context that
// asked for them, although the underlying reader keeps running.
type Prompter struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
	err   error
}

// NewPrompter prompts on out and reads from in.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out, lines: make(chan string)}
}

func (p *Prompter) start() {
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
		p.err = sc.Err()
		if p.err == nil {
			p.err = io.EOF
		}
		close(p.lines)
	}()
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(p.start)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", p.err
		}
		return strings.TrimSpace(line), nil
	}
}

// Ask shows the error dialog and waits for exit or settings.
func (p *Prompter) Ask(ctx context.Context, message string) (Choice, error) {
	fmt.Fprintf(p.out, "\nError\n  %s\n", message)
	for {
		fmt.Fprint(p.out, "[e]xit or [s]ettings? ")
		line, err := p.readLine(ctx)
		if err != nil {
			return 0, err
		}
		switch strings.ToLower(line) {
		case "e", "exit":
			return ChoiceExit, nil
		case "s", "settings":
			return ChoiceSettings, nil
		}
	}
}

// EditSettings asks for each field; an empty answer keeps the current value.
// Invalid combinations are reported and asked again.
func (p *Prompter) EditSettings(ctx context.Context, cur settings.Settings) (settings.Settings, error) {
	for {
		next := cur

		fmt.Fprintf(p.out, "Server address [%s]: ", cur.ServerAddress)
		line, err := p.readLine(ctx)
		if err != nil {
			return cur, err
		}
		if line != "" {
			next.ServerAddress = line
		}

		fmt.Fprintf(p.out, "Update interval in 100ms steps [%d]: ", cur.UpdateInterval)
		line, err = p.readLine(ctx)
		if err != nil {
			return cur, err
		}
		if line != "" {
			n, convErr := strconv.Atoi(line)
			if convErr != nil {
				fmt.Fprintf(p.out, "  not a number: %q\n", line)
				continue
			}
			next.UpdateInterval = n
		}

		if err := next.Validate(); err != nil {
			fmt.Fprintf(p.out, "  %v\n", err)
			continue
		}
		return next, nil
	}
}
