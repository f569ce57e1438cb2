// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sandbox

import "fmt"

// Error classes recorded in ExecutionRecord.ErrorClass and the audit log.
const (
	ErrClassValidation  = "validation"
	ErrClassConcurrency = "concurrency_limit"
	ErrClassTimeout     = "timeout"
	ErrClassExecution   = "execution"
	ErrClassNotFound    = "not_found"
)

// ValidationError reports a rejected skill name, context, path, or extension.
// A validation failure never starts a child process.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// ConcurrencyLimitError reports that the global execution cap is reached.
// It is transient; the caller may retry.
type ConcurrencyLimitError struct {
	Limit int
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("concurrency limit reached (%d executions in flight)", e.Limit)
}

// TimeoutError reports that the execution exceeded its wall-clock budget.
// Any partial output is discarded; a timeout is never a partial success.
type TimeoutError struct {
	Skill   string
	Seconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("skill %s exceeded %ds execution budget", e.Skill, e.Seconds)
}

// ExecutionError reports a non-zero exit or unparseable script output. The
// original stderr and stdout stay captured in the ExecutionRecord.
type ExecutionError struct {
	Skill  string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("skill %s execution failed: %s", e.Skill, e.Reason)
}
