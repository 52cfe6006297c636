package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JournalFile appends one JSON document per line. It backs the
// transaction submission log.
type JournalFile struct {
	mu sync.Mutex
	f  *os.File
}

func NewJournalFile(path string) (*JournalFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JournalFile{f: f}, nil
}

func (w *JournalFile) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func (w *JournalFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
