package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Store appends events to a JSONL file, one JSON object per line.
//
// Appends are serialized with an exclusive flock(2) held for the duration of
// one line write (acquire, write, flush, release), so concurrent processes
// appending to the same trace cannot interleave partial lines. Readers tail
// the file independently and skip unparseable lines.
type Store struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open creates a Store for the given path, creating parent directories as
// needed. The file itself is created lazily on first append.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the trace file path.
func (s *Store) Path() string { return s.path }

// Append durably writes one event. The write is guarded by an advisory
// exclusive lock on the trace file.
func (s *Store) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		s.f = f
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := syscall.Flock(int(s.f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock trace: %w", err)
	}
	defer func() { _ = syscall.Flock(int(s.f.Fd()), syscall.LOCK_UN) }()

	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Events reads every event currently in the trace. Malformed lines (including
// a partially written final line) are skipped, never fatal. A missing file
// yields an empty slice.
func (s *Store) Events() ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan trace: %w", err)
	}
	return events, nil
}

// Close releases the append handle. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
