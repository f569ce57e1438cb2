// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package request defines the typed request context shared by the scorers,
// the routing engine, and the execution sandbox. The context is a closed
// structure with optional fields validated at the boundary; scorers never see
// an arbitrary open map.
package request

import (
	"fmt"
	"strings"
)

// dangerousKeys are stripped recursively from any free-form payload before it
// reaches a scorer or a skill script. The names come from prototype-pollution
// attacks against the map-shaped contexts this engine replaced.
var dangerousKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Context carries the caller-supplied request context. All fields are
// optional; the zero value is a valid empty context.
type Context struct {
	// FileExtension is a caller-supplied extension tag (e.g. ".go"). The
	// engine never scans the filesystem to infer it.
	FileExtension string `json:"file_extension,omitempty" yaml:"file-extension,omitempty"`

	// Project is an opaque project tag used by context-indicator predicates.
	Project string `json:"project,omitempty" yaml:"project,omitempty"`

	// Operation names the skill operation the caller wants (e.g. "scan").
	// Skills may restrict it to an allow-list.
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`

	// Options holds flat string options forwarded to the skill script.
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`

	// Payload holds free-form structured input for the skill script. It is
	// sanitized before use and never consulted by the scorers.
	Payload map[string]interface{} `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Hint is an optional external classification hint consumed as an input
// signal. The engine never produces hints.
type Hint struct {
	// Type is "skill" or "agent".
	Type string `json:"type"`

	// Name optionally narrows the hint to a specific target.
	Name string `json:"name,omitempty"`

	// Confidence is the external classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// HintTypeSkill and HintTypeAgent are the accepted Hint.Type values.
const (
	HintTypeSkill = "skill"
	HintTypeAgent = "agent"
)

// Validate checks the hint shape. A nil hint is always valid.
func (h *Hint) Validate() error {
	if h == nil {
		return nil
	}
	if h.Type != HintTypeSkill && h.Type != HintTypeAgent {
		return fmt.Errorf("hint type must be %q or %q, got %q", HintTypeSkill, HintTypeAgent, h.Type)
	}
	if h.Confidence < 0 || h.Confidence > 1 {
		return fmt.Errorf("hint confidence must be in [0,1], got %v", h.Confidence)
	}
	return nil
}

// Sanitize returns a copy of the context with dangerous key names stripped
// recursively from Options and Payload. The receiver is not modified.
func (c Context) Sanitize() Context {
	out := c
	if c.Options != nil {
		out.Options = make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			if isDangerousKey(k) {
				continue
			}
			out.Options[k] = v
		}
	}
	if c.Payload != nil {
		out.Payload = sanitizeMap(c.Payload)
	}
	return out
}

func sanitizeMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if isDangerousKey(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return sanitizeMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isDangerousKey(k string) bool {
	_, bad := dangerousKeys[strings.ToLower(strings.TrimSpace(k))]
	return bad
}
