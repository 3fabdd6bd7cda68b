package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestInteractiveConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"sure\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := NewInteractive(strings.NewReader(tt.input), &out)

		got, err := p.Confirm(context.Background(), "Remove ~/.nvm?")
		if err != nil {
			t.Fatalf("Confirm(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Remove ~/.nvm? [y/N]: " {
			t.Errorf("unexpected prompt %q", out.String())
		}
	}
}

func TestInteractiveReadsSuccessiveAnswers(t *testing.T) {
	p := NewInteractive(strings.NewReader("y\nn\n"), &bytes.Buffer{})
	ctx := context.Background()

	first, _ := p.Confirm(ctx, "one?")
	second, _ := p.Confirm(ctx, "two?")
	if !first || second {
		t.Errorf("expected yes then no, got %v then %v", first, second)
	}
}

func TestInteractiveConfirmReturnsOnCancel(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	p := NewInteractive(in, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Confirm(ctx, "Uninstall Homebrew?")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Confirm kept waiting for input after cancellation")
	}

	// The line typed after the cancelled question answers the next one.
	go func() { _, _ = w.Write([]byte("y\n")) }()
	ok, err := p.Confirm(context.Background(), "again?")
	if err != nil || !ok {
		t.Errorf("expected yes from the pending read, got %v, %v", ok, err)
	}
}

func TestInteractiveWaitReturnsOnCancel(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	p := NewInteractive(in, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx, "upload the key"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAlways(t *testing.T) {
	ctx := context.Background()
	ok, err := Always().Confirm(ctx, "Uninstall Homebrew?")
	if !ok || err != nil {
		t.Errorf("expected unconditional yes, got %v, %v", ok, err)
	}
	if err := Always().Wait(ctx, "upload the key"); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if ok, err := Always().Confirm(cancelled, "Uninstall Homebrew?"); ok || err == nil {
		t.Errorf("expected cancellation to win, got %v, %v", ok, err)
	}
}
