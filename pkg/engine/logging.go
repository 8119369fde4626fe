package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event captures one engine decision for offline analysis: a tick
// evaluation, a processed batch, or a direct-reply resolution.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Tick           int       `json:"tick,omitempty"`
	Kind           string    `json:"kind"`
	BotID          string    `json:"bot_id,omitempty"`
	BotName        string    `json:"bot_name,omitempty"`
	Status         string    `json:"status,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ActionKind     string    `json:"action_kind,omitempty"`
	PostID         string    `json:"post_id,omitempty"`
	CommentID      string    `json:"comment_id,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	Batch          *Batch    `json:"batch,omitempty"`
}

// Batch mirrors processor stats inside an event.
type Batch struct {
	Total       int `json:"total"`
	Engaged     int `json:"engaged"`
	Ignored     int `json:"ignored"`
	Cooldown    int `json:"cooldown"`
	Rescheduled int `json:"rescheduled"`
	Deleted     int `json:"deleted"`
	Errors      int `json:"errors"`
	Likes       int `json:"likes"`
}

// EventLogger records engine events for later analysis.
type EventLogger interface {
	LogEvent(Event) error
	Close() error
}

// JSONLLogger writes each event as a JSON line.
type JSONLLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLLogger creates a JSONL logger at the given path.
func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLLogger{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// LogEvent writes a single event as JSONL.
func (l *JSONLLogger) LogEvent(ev Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return l.writer.Flush()
}

// Close flushes and closes the logger.
func (l *JSONLLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		_ = l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
