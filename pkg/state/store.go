// Package state persists which provisioning phases have completed.
//
// The durable format is one record per line:
//
//	prerequisites=complete
//	identity=complete
//
// Lines without '=' are ignored on load. Every mutation rewrites the whole
// file through a temp file + rename, so the file on disk is always a complete
// mapping even if the process dies mid-write.
package state

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openfroyo/bootstrap/pkg/fsutil"
	"github.com/spf13/afero"
)

// Status is the persisted status of a phase.
type Status string

// StatusComplete is the only persisted status. A phase absent from the
// mapping has not completed.
const StatusComplete Status = "complete"

// Store is the in-memory phase mapping plus its durable location.
// It is not safe for concurrent use.
type Store struct {
	fs     afero.Fs
	path   string
	phases map[string]Status
	order  []string
}

// New creates an empty store bound to path. Call Load to read it.
func New(fs afero.Fs, path string) *Store {
	return &Store{
		fs:     fs,
		path:   path,
		phases: make(map[string]Status),
	}
}

// Open creates a store bound to path and loads it.
func Open(fs afero.Fs, path string) (*Store, error) {
	s := New(fs, path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the durable location.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory mapping with the durable one. A missing file
// yields an empty mapping.
func (s *Store) Load() error {
	s.phases = make(map[string]Status)
	s.order = nil

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || Status(strings.TrimSpace(value)) != StatusComplete {
			continue
		}
		s.set(key, StatusComplete)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}

	return nil
}

// IsComplete reports whether phase is marked complete in memory.
func (s *Store) IsComplete(phase string) bool {
	return s.phases[phase] == StatusComplete
}

// MarkComplete marks phase complete and rewrites the durable file.
func (s *Store) MarkComplete(phase string) error {
	if phase == "" || strings.ContainsAny(phase, "=\n") {
		return fmt.Errorf("invalid phase identifier %q", phase)
	}

	s.set(phase, StatusComplete)
	return s.persist()
}

// Snapshot returns a copy of the in-memory mapping.
func (s *Store) Snapshot() map[string]Status {
	out := make(map[string]Status, len(s.phases))
	for k, v := range s.phases {
		out[k] = v
	}
	return out
}

// Completed returns completed phases in the order they were recorded.
func (s *Store) Completed() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Store) set(phase string, status Status) {
	if _, exists := s.phases[phase]; !exists {
		s.order = append(s.order, phase)
	}
	s.phases[phase] = status
}

func (s *Store) persist() error {
	var buf bytes.Buffer
	for _, phase := range s.order {
		fmt.Fprintf(&buf, "%s=%s\n", phase, s.phases[phase])
	}
	if err := fsutil.AtomicWrite(s.fs, s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
