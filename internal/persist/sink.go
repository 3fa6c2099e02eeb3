package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	errSinkBusy   = errors.New("output sink already open")
	errSinkClosed = errors.New("output sink not open")
)

// Sink is the single file a save writes to. Only one file may be open at a
// time.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// Open truncates or creates path with mode 0600.
func (s *Sink) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return fmt.Errorf("open %s: %w (%s)", path, errSinkBusy, s.file.Name())
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open save file: %w", err)
	}
	s.file = f
	return nil
}

// Append writes p in full at the end of the open file.
func (s *Sink) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errSinkClosed
	}
	n, err := s.file.Write(p)
	if err != nil {
		return fmt.Errorf("write save file: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("write save file: %w", io.ErrShortWrite)
	}
	return nil
}

// Close closes the open file. Closing a closed sink is an error.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errSinkClosed
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close save file: %w", err)
	}
	return nil
}
