// Package audit provides structured logging for skill executions. Every
// sandbox execution (cached or not, successful or not) is logged to a
// dedicated audit log for security review; a failed audit write degrades to
// a warning and never masks the execution result.
package audit

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/traylinx/skillrouter/internal/config"
)

// Entry records a single skill execution as one JSON line.
type Entry struct {
	// Timestamp is when the execution started.
	Timestamp time.Time `json:"timestamp"`

	// RequestID uniquely identifies the execution request.
	RequestID string `json:"request_id"`

	// Skill is the executed skill name.
	Skill string `json:"skill"`

	// ContextDigest is the SHA-256 digest of the canonical execution context.
	// The raw context never reaches the audit log.
	ContextDigest string `json:"context_digest"`

	// Success reports whether the execution produced a usable result.
	Success bool `json:"success"`

	// Cached marks cache hits that short-circuited execution.
	Cached bool `json:"cached,omitempty"`

	// DurationMs is the wall-clock execution time.
	DurationMs int64 `json:"duration_ms"`

	// ErrorClass names the failure taxonomy class, empty on success.
	ErrorClass string `json:"error_class,omitempty"`
}

// Logger writes JSON-formatted audit entries to a rotating log file.
type Logger struct {
	mu       sync.Mutex
	encoder  *json.Encoder
	file     *lumberjack.Logger
	enabled  bool
	fallback *log.Logger
}

// NewLogger creates an audit logger writing to logPath with the configured
// rotation policy. A disabled config yields a no-op logger.
func NewLogger(cfg config.AuditConfig, logPath string) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{enabled: false, fallback: log.New()}, nil
	}

	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 10
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 30
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}

	fileLogger := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &Logger{
		encoder:  json.NewEncoder(fileLogger),
		file:     fileLogger,
		enabled:  true,
		fallback: log.New(),
	}, nil
}

// Log writes one audit entry. Thread-safe. A write failure falls back to the
// application log as a warning; the caller's result is never affected.
func (l *Logger) Log(entry Entry) {
	if !l.enabled {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(entry); err != nil {
		l.fallback.WithFields(log.Fields{
			"error":       err.Error(),
			"request_id":  entry.RequestID,
			"skill":       entry.Skill,
			"success":     entry.Success,
			"error_class": entry.ErrorClass,
		}).Warn("Failed to write audit log entry")
	}
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if !l.enabled || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Rotate triggers a manual log file rotation.
func (l *Logger) Rotate() error {
	if !l.enabled || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Rotate()
}
