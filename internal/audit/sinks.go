package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSink appends one JSON line per event to a local file (configured via
// the AUDIT_LOG_FILE environment variable).
type FileSink struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if absent) the audit log file for append.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileSink{path: path, file: f}, nil
}

func (s *FileSink) Name() string { return "file:" + s.path }

func (s *FileSink) Write(_ context.Context, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(line)
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// LogSink routes audit events through the structured slog logger, for
// environments without a dedicated audit store.
type LogSink struct {
	logger interface {
		Info(msg string, args ...any)
	}
}

func NewLogSink(logger interface {
	Info(msg string, args ...any)
}) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, event Event) error {
	s.logger.Info("audit event",
		"id", event.ID,
		"eventType", event.EventType,
		"outcome", event.Outcome,
		"namespace", event.Resource.Namespace,
		"resource", event.Resource.Name,
	)
	return nil
}
