// Package memory stores ingestion records in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// LogSink stores records in-memory and returns pseudo URIs.
type LogSink struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewLogSink creates a new in-memory log sink.
func NewLogSink() *LogSink {
	return &LogSink{
		data: make(map[string][]byte),
	}
}

// PutObject persists the content and returns a memory:// URI.
func (s *LogSink) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the stored content for a path.
func (s *LogSink) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths returns the stored paths in insertion-independent order.
func (s *LogSink) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.data))
	for p := range s.data {
		paths = append(paths, p)
	}
	return paths
}
