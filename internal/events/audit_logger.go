package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize caps the audit log before rotation (20MB).
	DefaultMaxLogSize = 20 * 1024 * 1024
	logFileExtension  = ".jsonl"
	rotatedDirName    = "rotated"
)

// LogEntry is one line of the append-only audit trail. Together with the
// archive directories it reconstructs the full lifecycle of any record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	RecordID  string         `json:"record_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditLogger appends JSONL entries with size-based rotation.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	logPath     string
}

// NewAuditLogger opens (or creates) the audit log at logPath.
func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	l := &AuditLogger{logPath: logPath, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Record writes an entry for a bus event.
func (l *AuditLogger) Record(ev Event) error {
	entry := LogEntry{
		Timestamp: ev.Timestamp,
		EventType: string(ev.Type),
		Details:   ev.Data,
	}
	if id, ok := ev.Data["record_id"].(string); ok {
		entry.RecordID = id
	}
	if st, ok := ev.Data["stage"].(string); ok {
		entry.Stage = st
	}
	return l.WriteEntry(&entry)
}

// WriteEntry appends one JSONL line, rotating first if the entry would push
// the file past its size limit.
func (l *AuditLogger) WriteEntry(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close current audit log: %w", err)
	}

	rotatedDir := filepath.Join(filepath.Dir(l.logPath), rotatedDirName)
	if err := os.MkdirAll(rotatedDir, 0755); err != nil {
		return fmt.Errorf("create rotation directory: %w", err)
	}

	base := filepath.Base(l.logPath)
	stem := base[:len(base)-len(logFileExtension)]
	rotated := filepath.Join(rotatedDir,
		fmt.Sprintf("%s.%s%s", stem, time.Now().Format("20060102_150405"), logFileExtension))

	if err := os.Rename(l.logPath, rotated); err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}
	return l.openLogFile()
}

// Close flushes and closes the log file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
