package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mirrorml/internal/config"
)

// Level orders log severities; messages below the logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger provides leveled logging (debug/info/warning/error) to stdout/stderr
// and, when a log directory is configured, to per-level files.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      Level
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger from the configuration and ensures the log directory exists.
func NewLogger(config *config.Config) (*Logger, error) {
	level, err := ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}

	if config.LogDirectory == "" {
		return New(os.Stdout, os.Stderr, level), nil
	}

	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &Logger{
		level:  level,
		logDir: config.LogDirectory,
	}
	if err := logger.setupFileLoggers(); err != nil {
		return nil, err
	}
	return logger, nil
}

// New creates a Logger writing debug/info/warning entries to out and errors to errOut.
func New(out, errOut io.Writer, level Level) *Logger {
	logger := &Logger{level: level}
	logger.setupLoggers(out, out, out, errOut)
	return logger
}

// setupFileLoggers mirrors every level into its own file inside logDir.
func (l *Logger) setupFileLoggers() error {
	files := make([]io.Writer, 0, 4)
	for _, name := range []string{"debug.log", "info.log", "warning.log", "error.log"} {
		file, err := l.openLogFile(filepath.Join(l.logDir, name))
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	l.setupLoggers(
		io.MultiWriter(os.Stdout, files[0]),
		io.MultiWriter(os.Stdout, files[1]),
		io.MultiWriter(os.Stdout, files[2]),
		io.MultiWriter(os.Stderr, files[3]),
	)
	return nil
}

func (l *Logger) setupLoggers(debugWriter, infoWriter, warningWriter, errorWriter io.Writer) {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l.debugLog = log.New(debugWriter, "🐛 DEBUG   ", flags)
	l.infoLog = log.New(infoWriter, "ℹ️  INFO    ", flags)
	l.warningLog = log.New(warningWriter, "⚠️  WARNING ", flags)
	l.errorLog = log.New(errorWriter, "❌ ERROR   ", flags)
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) output(level Level, target *log.Logger, format string, v ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// depth 3: output <- Info/Debug/... <- caller
	_ = target.Output(3, fmt.Sprintf(format, v...))
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(LevelDebug, l.debugLog, format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.output(LevelInfo, l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(LevelWarning, l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.output(LevelError, l.errorLog, format, v...)
}
