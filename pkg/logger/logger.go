// Package logger provides the named, levelled loggers shared by the server and client binaries
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity of a log line
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the upper-case level name
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a flag value to a level, falling back to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

var (
	globalMu    sync.RWMutex
	globalLevel = INFO
	console     io.Writer = color.Output

	levelColors = map[LogLevel]*color.Color{
		DEBUG: color.New(color.FgHiBlack),
		INFO:  color.New(color.FgCyan),
		WARN:  color.New(color.FgYellow),
		ERROR: color.New(color.FgRed),
		FATAL: color.New(color.FgRed, color.Bold),
	}

	exit = os.Exit
)

// Logger writes prefixed lines to the console and optionally to a file
type Logger struct {
	name string
	mu   sync.Mutex
	file io.WriteCloser
}

// Named loggers used across the binaries
var (
	Server  = New("SERVER")
	Client  = New("CLIENT")
	Tracker = New("TRACKER")
	Scene   = New("SCENE")
	Monitor = New("MONITOR")
)

var all = []*Logger{Server, Client, Tracker, Scene, Monitor}

// New creates a logger with the given component name
func New(name string) *Logger {
	return &Logger{name: name}
}

// SetGlobalLogLevel sets the minimum level emitted by every logger
func SetGlobalLogLevel(level LogLevel) {
	globalMu.Lock()
	globalLevel = level
	globalMu.Unlock()
}

// GlobalLogLevel reports the current minimum level
func GlobalLogLevel() LogLevel {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLevel
}

// SetOutput redirects console output. Tests use it to silence logs.
func SetOutput(w io.Writer) {
	globalMu.Lock()
	console = w
	globalMu.Unlock()
}

// SetFile additionally writes this logger's lines to the file at path
func (l *Logger) SetFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	old := l.file
	l.file = f
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// InitializeFileLogging gives every named logger a timestamped file under dir
func InitializeFileLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	ts := time.Now().Format("20060102-150405")
	for _, l := range all {
		name := fmt.Sprintf("%s-%s.log", strings.ToLower(l.name), ts)
		if err := l.SetFile(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Info logs a message at INFO level
func (l *Logger) Info(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warn logs a message at WARN level
func (l *Logger) Warn(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Error logs a message at ERROR level
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Fatal logs and exits the process with status 1
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
	exit(1)
}

// Enabled reports whether lines at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= GlobalLogLevel()
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	globalMu.RLock()
	min, out := globalLevel, console
	globalMu.RUnlock()
	if level < min {
		return
	}

	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] [%s] %s\n", time.Now().Format("2006/01/02 15:04:05"), level, l.name, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := levelColors[level]; ok && out != nil {
		c.Fprint(out, line)
	} else if out != nil {
		fmt.Fprint(out, line)
	}
	if l.file != nil {
		io.WriteString(l.file, line)
	}
}
