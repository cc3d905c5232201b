// Package logger provides process-wide logging to console and a dated log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	instance *Logger
	once     sync.Once
)

// Logger writes to both the console and a per-day log file.
type Logger struct {
	out     *log.Logger
	errOut  *log.Logger
	logFile *os.File
	verbose bool
	mu      sync.Mutex
}

// Init initializes the global logger instance. Safe to call more than once;
// only the first call takes effect.
func Init(logDir string) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(logDir)
	})
	return initErr
}

func newLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("lockstep-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		out:     log.New(io.MultiWriter(os.Stdout, logFile), "", log.LstdFlags),
		errOut:  log.New(io.MultiWriter(os.Stderr, logFile), "ERROR: ", log.LstdFlags),
		logFile: logFile,
		verbose: os.Getenv("LOCKSTEP_DEBUG") == "1",
	}, nil
}

// Close closes the log file.
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Info logs an informational message.
func Info(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.out.Printf(format, v...)
	}
}

// Debug logs a message only when LOCKSTEP_DEBUG=1.
func Debug(format string, v ...interface{}) {
	if instance != nil && instance.verbose {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.out.Printf("DEBUG: "+format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.errOut.Printf(format, v...)
	}
}

// Printf logs a formatted message.
func Printf(format string, v ...interface{}) {
	Info(format, v...)
}

// Println logs a simple message.
func Println(v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.out.Println(v...)
	}
}

// Fatalf logs a formatted fatal error and exits.
func Fatalf(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		instance.errOut.Fatalf(format, v...)
		instance.mu.Unlock()
	} else {
		log.Fatalf(format, v...)
	}
}
