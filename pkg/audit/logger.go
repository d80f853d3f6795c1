package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// maxLine bounds one encoded event when reading the log back.
const maxLine = 1 << 20

// FileLogger appends events as JSON lines. When the file reaches
// RotationConfig.MaxSize it is renamed to <path>.1, older backups shift to
// <path>.2 and so on, and backups beyond MaxBackups are removed.
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu   sync.RWMutex
	file *os.File
	size int64
}

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // Max file size in bytes before rotation; 0 disables rotation
	MaxBackups int   // Max number of backups to retain; 0 keeps all
}

// RotationMB builds a RotationConfig from a size in megabytes.
func RotationMB(maxSizeMB, maxBackups int) RotationConfig {
	return RotationConfig{MaxSize: int64(maxSizeMB) << 20, MaxBackups: maxBackups}
}

// NewFileLogger opens (or creates) the audit log at path.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("opening audit log: %w", err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// backup returns the path of the nth backup.
func (l *FileLogger) backup(n int) string {
	return l.path + "." + strconv.Itoa(n)
}

// backups counts the consecutive backups present on disk.
func (l *FileLogger) backups() int {
	n := 0
	for {
		if _, err := os.Stat(l.backup(n + 1)); err != nil {
			return n
		}
		n++
	}
}

// Log appends event, rotating first when the file is full.
func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit log is closed")
	}
	if l.rotation.MaxSize > 0 && l.size >= l.rotation.MaxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	n := l.backups()
	if l.rotation.MaxBackups > 0 {
		for ; n >= l.rotation.MaxBackups; n-- {
			if err := os.Remove(l.backup(n)); err != nil {
				util.Warnf("audit: removing %s: %v", l.backup(n), err)
			}
		}
	}
	for i := n; i >= 1; i-- {
		if err := os.Rename(l.backup(i), l.backup(i+1)); err != nil {
			return err
		}
	}
	if err := os.Rename(l.path, l.backup(1)); err != nil {
		return err
	}
	return l.open()
}

// Query returns the events matching filter, oldest first. Backups are read
// before the live file so results stay chronological across rotations.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var events []*Event
	for i := l.backups(); i >= 1; i-- {
		if err := readEvents(l.backup(i), filter, &events); err != nil {
			return nil, err
		}
	}
	if err := readEvents(l.path, filter, &events); err != nil {
		return nil, err
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []*Event{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	if events == nil {
		events = []*Event{}
	}
	return events, nil
}

// readEvents appends the matching events of one file to out. Malformed
// lines are skipped.
func readEvents(path string, filter Filter, out *[]*Event) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: skipping malformed entry at %s:%d: %v", filepath.Base(path), line, err)
			continue
		}
		if filter.matches(&event) {
			*out = append(*out, &event)
		}
	}
	return scanner.Err()
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (f Filter) matches(event *Event) bool {
	switch {
	case f.Group != "" && event.Group != f.Group:
		return false
	case f.Port != "" && event.Port != f.Port:
		return false
	case f.Operation != "" && event.Operation != f.Operation:
		return false
	case !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime):
		return false
	case !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime):
		return false
	case f.SuccessOnly && !event.Success:
		return false
	case f.FailureOnly && event.Success:
		return false
	case f.CriticalOnly && !event.Critical:
		return false
	}
	return true
}

// loggerHolder wraps a Logger so atomic.Value always stores the same concrete type.
type loggerHolder struct {
	logger Logger
}

var defaultLogger atomic.Value

// SetDefaultLogger sets the default audit logger
func SetDefaultLogger(logger Logger) {
	defaultLogger.Store(loggerHolder{logger: logger})
}

func getDefaultLogger() Logger {
	v := defaultLogger.Load()
	if v == nil {
		return nil
	}
	return v.(loggerHolder).logger
}

// Log logs an event using the default logger
func Log(event *Event) error {
	l := getDefaultLogger()
	if l == nil {
		return nil // No-op if no logger configured
	}
	return l.Log(event)
}

// Query queries events from the default logger
func Query(filter Filter) ([]*Event, error) {
	l := getDefaultLogger()
	if l == nil {
		return []*Event{}, nil
	}
	return l.Query(filter)
}
