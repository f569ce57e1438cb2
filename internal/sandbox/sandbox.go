// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sandbox executes skill scripts as isolated external processes
// under strict validation, a global concurrency cap, a hard wall-clock
// timeout, and bounded output capture. Execution results are returned as
// ExecutionRecords; failures are captured in the record rather than thrown,
// so callers always receive a record with a success flag.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/traylinx/skillrouter/internal/audit"
	"github.com/traylinx/skillrouter/internal/catalog"
	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/request"
	"github.com/traylinx/skillrouter/internal/util"
)

// ExecutionRecord is the result of one skill execution attempt.
type ExecutionRecord struct {
	RequestID  string          `json:"request_id"`
	Skill      string          `json:"skill"`
	ScriptPath string          `json:"script_path,omitempty"`
	Operation  string          `json:"operation,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Success    bool            `json:"success"`
	Cached     bool            `json:"cached,omitempty"`
	ErrorClass string          `json:"error_class,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stdout     string          `json:"stdout,omitempty"`
	Stderr     string          `json:"stderr,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Sandbox runs skill scripts. Safe for concurrent use; the concurrency cap is
// enforced with a buffered-channel semaphore whose slot release is deferred,
// so the cap holds on every exit path.
type Sandbox struct {
	cfg        config.SandboxConfig
	skillsRoot string
	catalogFn  func() *catalog.Catalog
	cache      *Cache
	auditor    *audit.Logger
	slots      chan struct{}
}

// New creates a sandbox rooted at skillsRoot. catalogFn returns the current
// catalog so hot reloads are picked up per execution. cache and auditor may
// be nil.
func New(cfg config.SandboxConfig, skillsRoot string, catalogFn func() *catalog.Catalog, cache *Cache, auditor *audit.Logger) (*Sandbox, error) {
	root, err := filepath.Abs(skillsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skills root: %w", err)
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max-concurrent must be positive, got %d", cfg.MaxConcurrent)
	}

	return &Sandbox{
		cfg:        cfg,
		skillsRoot: root,
		catalogFn:  catalogFn,
		cache:      cache,
		auditor:    auditor,
		slots:      make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Execute validates and runs skillName against reqCtx. The validation
// pipeline is fail-fast and strictly ordered: name, context keys, script
// path, extension, concurrency slot, then the timed process itself. Every
// attempt produces exactly one ExecutionRecord and one audit entry.
func (s *Sandbox) Execute(ctx context.Context, skillName string, reqCtx request.Context) *ExecutionRecord {
	record := &ExecutionRecord{
		RequestID: uuid.New().String(),
		Skill:     skillName,
		Operation: reqCtx.Operation,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		record.FinishedAt = time.Now().UTC()
		s.audit(record, reqCtx)
	}()

	// 1. Skill name allow-pattern.
	if !util.IsValidSlug(skillName) {
		s.fail(record, ErrClassValidation, &ValidationError{Field: "skill name", Reason: "must be lowercase letters, digits, and hyphens"})
		return record
	}

	skill, err := s.catalogFn().Skill(skillName)
	if err != nil {
		s.fail(record, ErrClassNotFound, err)
		return record
	}
	if !skill.Available {
		s.fail(record, ErrClassValidation, &ValidationError{Field: "skill", Reason: "no executable script present"})
		return record
	}
	if !skill.AllowsOperation(reqCtx.Operation) {
		s.fail(record, ErrClassValidation, &ValidationError{Field: "operation", Reason: fmt.Sprintf("%q not in the skill's allow-list", reqCtx.Operation)})
		return record
	}

	// 2. Strip dangerous context keys before anything touches the payload.
	reqCtx = reqCtx.Sanitize()

	// 3. Script path must be a strict descendant of the skills root.
	scriptPath, err := s.resolveScriptPath(skill.ScriptPath)
	if err != nil {
		s.fail(record, ErrClassValidation, err)
		return record
	}
	record.ScriptPath = scriptPath

	// 4. Extension allow-list.
	ext := strings.ToLower(filepath.Ext(scriptPath))
	interpreter, err := s.interpreterFor(ext)
	if err != nil {
		s.fail(record, ErrClassValidation, err)
		return record
	}

	// Cache probe happens after validation so a poisoned key can never skip
	// the checks above.
	stdin, err := canonicalContext(reqCtx)
	if err != nil {
		s.fail(record, ErrClassValidation, &ValidationError{Field: "context", Reason: err.Error()})
		return record
	}
	cacheKey := executionCacheKey(skillName, stdin)
	if s.cache != nil {
		if stdout, hit := s.cache.Get(ctx, cacheKey); hit {
			record.Cached = true
			record.Stdout = stdout
			s.parseOutput(record)
			return record
		}
	}

	// 5. Global concurrency cap, non-blocking acquire.
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		s.fail(record, ErrClassConcurrency, &ConcurrencyLimitError{Limit: s.cfg.MaxConcurrent})
		return record
	}

	// 6. Timed execution with bounded output.
	s.run(ctx, record, interpreter, scriptPath, stdin)

	if record.Success && s.cache != nil {
		s.cache.Put(ctx, cacheKey, skillName, record.Stdout)
	}
	return record
}

// resolveScriptPath resolves path and enforces the strict-descendant rule.
func (s *Sandbox) resolveScriptPath(path string) (string, error) {
	if path == "" {
		return "", &ValidationError{Field: "script path", Reason: "skill has no script"}
	}
	if strings.Contains(path, "..") {
		return "", &ValidationError{Field: "script path", Reason: "parent-directory traversal rejected"}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &ValidationError{Field: "script path", Reason: err.Error()}
	}

	rel, err := filepath.Rel(s.skillsRoot, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", &ValidationError{Field: "script path", Reason: "script must live under the skills root"}
	}
	return abs, nil
}

// interpreterFor maps an allowed extension to its interpreter binary.
func (s *Sandbox) interpreterFor(ext string) (string, error) {
	allowed := false
	for _, e := range s.cfg.AllowedExtensions {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &ValidationError{Field: "extension", Reason: fmt.Sprintf("%q not in the allow-list", ext)}
	}

	interpreter, ok := s.cfg.Interpreters[ext]
	if !ok || interpreter == "" {
		return "", &ValidationError{Field: "extension", Reason: fmt.Sprintf("no interpreter configured for %q", ext)}
	}
	return interpreter, nil
}

// run starts the script under the wall-clock timeout. The context JSON goes
// to the script's stdin; stdout and stderr are captured into bounded buffers.
// On timeout the whole process group is killed and the result is a timeout
// failure, never a partial success.
func (s *Sandbox) run(ctx context.Context, record *ExecutionRecord, interpreter, scriptPath string, stdin []byte) {
	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, interpreter, scriptPath)
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.Stdin = bytes.NewReader(stdin)

	stdout := newBoundedBuffer(s.cfg.MaxOutputBytes)
	stderr := newBoundedBuffer(s.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// The script runs in its own process group so a timeout kill reaps any
	// children it spawned, not just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		// Partial output is discarded by contract.
		record.Stdout = ""
		record.Stderr = ""
		s.fail(record, ErrClassTimeout, &TimeoutError{Skill: record.Skill, Seconds: s.cfg.TimeoutSeconds})
		return
	}

	record.Stdout = stdout.String()
	record.Stderr = stderr.String()

	if err != nil {
		s.fail(record, ErrClassExecution, &ExecutionError{Skill: record.Skill, Reason: err.Error()})
		return
	}

	s.parseOutput(record)
}

// parseOutput applies the script output contract: stdout is a JSON document;
// a "status" of "error" reports a script-level failure with its "error"
// message; anything unparseable is an execution failure with the raw capture
// preserved.
func (s *Sandbox) parseOutput(record *ExecutionRecord) {
	trimmed := strings.TrimSpace(record.Stdout)
	if trimmed == "" || !gjson.Valid(trimmed) {
		s.fail(record, ErrClassExecution, &ExecutionError{Skill: record.Skill, Reason: "script produced no parseable JSON output"})
		return
	}

	if gjson.Get(trimmed, "status").String() == "error" {
		reason := gjson.Get(trimmed, "error").String()
		if reason == "" {
			reason = "script reported an error"
		}
		s.fail(record, ErrClassExecution, &ExecutionError{Skill: record.Skill, Reason: reason})
		return
	}

	record.Success = true
	record.Result = json.RawMessage(trimmed)
}

// fail marks the record with the taxonomy class and message.
func (s *Sandbox) fail(record *ExecutionRecord, class string, err error) {
	record.Success = false
	record.ErrorClass = class
	record.Error = err.Error()
}

// audit writes the execution's audit entry. Failures inside the audit logger
// degrade to a warning there; a nil auditor just logs at debug.
func (s *Sandbox) audit(record *ExecutionRecord, reqCtx request.Context) {
	digest := ""
	if canonical, err := canonicalContext(reqCtx); err == nil {
		digest = executionCacheKey(record.Skill, canonical)
	}

	if s.auditor == nil {
		log.Debugf("Execution %s skill=%s success=%v class=%s", record.RequestID, record.Skill, record.Success, record.ErrorClass)
		return
	}

	s.auditor.Log(audit.Entry{
		Timestamp:     record.StartedAt,
		RequestID:     record.RequestID,
		Skill:         record.Skill,
		ContextDigest: digest,
		Success:       record.Success,
		Cached:        record.Cached,
		DurationMs:    record.FinishedAt.Sub(record.StartedAt).Milliseconds(),
		ErrorClass:    record.ErrorClass,
	})
}

// canonicalContext marshals the sanitized context deterministically (JSON
// with sorted map keys) so equal contexts share a cache key.
func canonicalContext(reqCtx request.Context) ([]byte, error) {
	return json.Marshal(reqCtx.Sanitize())
}

// executionCacheKey derives the cache key from the skill name and canonical
// context.
func executionCacheKey(skill string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(skill))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// boundedBuffer captures at most max bytes and silently drops the rest.
type boundedBuffer struct {
	buf bytes.Buffer
	max int64
}

func newBoundedBuffer(max int64) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		// Report the write as consumed so the child is never blocked.
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	return b.buf.String()
}
