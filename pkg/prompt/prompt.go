// Package prompt asks the operator yes/no questions.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Confirmer answers yes/no questions. Both methods return ctx.Err() when ctx
// is cancelled while waiting for the operator.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)

	// Wait blocks until the operator acknowledges message.
	Wait(ctx context.Context, message string) error
}

// ErrNotInteractive is returned when input is needed but stdin is not a
// terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal")

type always struct{}

// Always returns a Confirmer that says yes to everything without asking.
func Always() Confirmer { return always{} }

func (always) Confirm(ctx context.Context, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (always) Wait(ctx context.Context, _ string) error { return ctx.Err() }

type lineResult struct {
	line string
	err  error
}

// Interactive reads answers line by line.
type Interactive struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	// lines carries the result of the single outstanding read. A read left
	// behind by a cancelled question answers the next one.
	lines   chan lineResult
	reading bool
}

// NewInteractive creates a confirmer reading from in and writing questions
// to out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out, lines: make(chan lineResult, 1)}
}

// Stdin returns a confirmer on the process terminal, or an error when stdin
// is not a terminal.
func Stdin() (*Interactive, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, ErrNotInteractive
	}
	return NewInteractive(os.Stdin, os.Stderr), nil
}

// readLine returns the next input line or ctx.Err(), whichever comes first.
func (p *Interactive) readLine(ctx context.Context) (string, error) {
	if !p.reading {
		p.reading = true
		go func() {
			line, err := p.in.ReadString('\n')
			p.lines <- lineResult{line: line, err: err}
		}()
	}

	select {
	case r := <-p.lines:
		p.reading = false
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return "", r.err
		}
		return r.line, nil
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	}
}

// Confirm prints question and reads an answer. Only "y" and "yes" (any
// case) are yes; end of input is no.
func (p *Interactive) Confirm(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.readLine(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Wait prints message and blocks until a line is read.
func (p *Interactive) Wait(ctx context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s (press Enter to continue) ", message)
	if _, err := p.readLine(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}
