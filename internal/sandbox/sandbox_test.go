// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/traylinx/skillrouter/internal/catalog"
	"github.com/traylinx/skillrouter/internal/config"
	"github.com/traylinx/skillrouter/internal/request"
)

// testSandbox builds a sandbox over a temp skills root with shell scripts.
// Each entry in scripts maps a skill name to the script body.
func testSandbox(t *testing.T, cfg config.SandboxConfig, scripts map[string]string) (*Sandbox, *Cache) {
	t.Helper()

	root := t.TempDir()
	var skills []*catalog.SkillDefinition
	for name, body := range scripts {
		dir := filepath.Join(root, name, "scripts")
		require.NoError(t, os.MkdirAll(dir, 0755))
		scriptPath := filepath.Join(dir, "main.sh")
		require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"+body+"\n"), 0755))
		skills = append(skills, &catalog.SkillDefinition{
			Name:       name,
			ScriptPath: scriptPath,
			Available:  true,
		})
	}
	cat := catalog.New(skills, nil)

	cache, err := NewCache(context.Background(),
		filepath.Join(t.TempDir(), "cache.sqlite3"),
		time.Duration(cfg.CacheTTLSeconds)*time.Second, 1)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	sb, err := New(cfg, root, func() *catalog.Catalog { return cat }, cache, nil)
	require.NoError(t, err)
	return sb, cache
}

func defaultSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		MaxConcurrent:     4,
		TimeoutSeconds:    10,
		MaxOutputBytes:    1 << 20,
		AllowedExtensions: []string{".sh"},
		Interpreters:      map[string]string{".sh": "sh"},
		CacheTTLSeconds:   300,
	}
}

func TestExecuteSuccess(t *testing.T) {
	sb, _ := testSandbox(t, defaultSandboxConfig(), map[string]string{
		"tech-debt-tracker": `echo '{"status":"ok","debt_items":3}'`,
	})

	record := sb.Execute(context.Background(), "tech-debt-tracker", request.Context{Operation: "scan"})

	assert.True(t, record.Success)
	assert.False(t, record.Cached)
	assert.Empty(t, record.ErrorClass)
	assert.Equal(t, int64(3), gjson.GetBytes(record.Result, "debt_items").Int())
	assert.NotEmpty(t, record.RequestID)
	assert.False(t, record.FinishedAt.Before(record.StartedAt))
}

func TestExecuteRejectsInvalidName(t *testing.T) {
	sb, _ := testSandbox(t, defaultSandboxConfig(), nil)

	for _, name := range []string{"bad;name", "../escape", "Has Spaces", ""} {
		record := sb.Execute(context.Background(), name, request.Context{})
		assert.False(t, record.Success, "name %q", name)
		assert.Equal(t, ErrClassValidation, record.ErrorClass, "name %q", name)
		// Validation failures never resolve a script path, let alone run one.
		assert.Empty(t, record.ScriptPath, "name %q", name)
	}
}

func TestExecuteUnknownSkill(t *testing.T) {
	sb, _ := testSandbox(t, defaultSandboxConfig(), nil)

	record := sb.Execute(context.Background(), "no-such-skill", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassNotFound, record.ErrorClass)
}

func TestExecuteRejectsEscapedScriptPath(t *testing.T) {
	cfg := defaultSandboxConfig()
	root := t.TempDir()

	// Script physically outside the skills root.
	outside := filepath.Join(t.TempDir(), "main.sh")
	require.NoError(t, os.WriteFile(outside, []byte("#!/bin/sh\necho '{}'\n"), 0755))

	cat := catalog.New([]*catalog.SkillDefinition{{
		Name:       "escapee",
		ScriptPath: outside,
		Available:  true,
	}}, nil)

	sb, err := New(cfg, root, func() *catalog.Catalog { return cat }, nil, nil)
	require.NoError(t, err)

	record := sb.Execute(context.Background(), "escapee", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassValidation, record.ErrorClass)
}

func TestExecuteRejectsDisallowedExtension(t *testing.T) {
	cfg := defaultSandboxConfig()
	cfg.AllowedExtensions = []string{".py"}

	sb, _ := testSandbox(t, cfg, map[string]string{
		"shell-only": `echo '{}'`,
	})

	record := sb.Execute(context.Background(), "shell-only", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassValidation, record.ErrorClass)
}

func TestExecuteScriptError(t *testing.T) {
	sb, _ := testSandbox(t, defaultSandboxConfig(), map[string]string{
		"failing-skill": `echo '{"status":"error","error":"nothing to scan"}'`,
		"crashing-skill": `echo boom >&2
exit 3`,
		"silent-skill": `true`,
	})

	record := sb.Execute(context.Background(), "failing-skill", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassExecution, record.ErrorClass)
	assert.Contains(t, record.Error, "nothing to scan")

	record = sb.Execute(context.Background(), "crashing-skill", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassExecution, record.ErrorClass)
	assert.Contains(t, record.Stderr, "boom")

	record = sb.Execute(context.Background(), "silent-skill", request.Context{})
	assert.False(t, record.Success)
	assert.Equal(t, ErrClassExecution, record.ErrorClass)
}

func TestExecuteTimeout(t *testing.T) {
	cfg := defaultSandboxConfig()
	cfg.TimeoutSeconds = 1

	sb, _ := testSandbox(t, cfg, map[string]string{
		"slow-skill": `sleep 5
echo '{"status":"ok"}'`,
	})

	start := time.Now()
	record := sb.Execute(context.Background(), "slow-skill", request.Context{})

	assert.False(t, record.Success)
	assert.Equal(t, ErrClassTimeout, record.ErrorClass)
	// A timeout is never a partial success; output is discarded.
	assert.Empty(t, record.Stdout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteConcurrencyCap(t *testing.T) {
	cfg := defaultSandboxConfig()
	cfg.MaxConcurrent = 2
	cfg.CacheTTLSeconds = 0

	sb, _ := testSandbox(t, cfg, map[string]string{
		"slow-skill": `sleep 1
echo '{"status":"ok"}'`,
	})

	const total = 3
	records := make([]*ExecutionRecord, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i] = sb.Execute(context.Background(), "slow-skill", request.Context{
				Options: map[string]string{"slot": string(rune('a' + i))},
			})
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, r := range records {
		if r.ErrorClass == ErrClassConcurrency {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected, "exactly one execution over the cap is rejected")
}

func TestExecuteCaching(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "invocations")

	dir := filepath.Join(root, "counting-skill", "scripts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	script := "#!/bin/sh\necho run >> " + marker + "\necho '{\"status\":\"ok\"}'\n"
	scriptPath := filepath.Join(dir, "main.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0755))

	cat := catalog.New([]*catalog.SkillDefinition{{
		Name:       "counting-skill",
		ScriptPath: scriptPath,
		Available:  true,
	}}, nil)

	cache, err := NewCache(context.Background(), filepath.Join(t.TempDir(), "cache.sqlite3"), 5*time.Minute, 1)
	require.NoError(t, err)
	defer cache.Close()

	sb, err := New(defaultSandboxConfig(), root, func() *catalog.Catalog { return cat }, cache, nil)
	require.NoError(t, err)

	reqCtx := request.Context{Options: map[string]string{"path": "src"}}

	first := sb.Execute(context.Background(), "counting-skill", reqCtx)
	require.True(t, first.Success)
	assert.False(t, first.Cached)

	second := sb.Execute(context.Background(), "counting-skill", reqCtx)
	require.True(t, second.Success)
	assert.True(t, second.Cached)

	// A different context value misses the cache and re-executes.
	third := sb.Execute(context.Background(), "counting-skill", request.Context{Options: map[string]string{"path": "docs"}})
	require.True(t, third.Success)
	assert.False(t, third.Cached)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "run\nrun\n", string(data), "cached call must not re-invoke the script")
}

func TestExecuteStripsDangerousContextKeys(t *testing.T) {
	sb, _ := testSandbox(t, defaultSandboxConfig(), map[string]string{
		"echo-skill": `cat`,
	})

	record := sb.Execute(context.Background(), "echo-skill", request.Context{
		Payload: map[string]interface{}{
			"__proto__": map[string]interface{}{"polluted": true},
			"safe":      "value",
		},
	})

	// The script echoes its stdin; the dangerous key must be gone.
	require.True(t, record.Success)
	assert.False(t, gjson.GetBytes(record.Result, "payload.__proto__").Exists())
	assert.Equal(t, "value", gjson.GetBytes(record.Result, "payload.safe").String())
}

func TestBoundedBuffer(t *testing.T) {
	cfg := defaultSandboxConfig()
	cfg.MaxOutputBytes = 64

	sb, _ := testSandbox(t, cfg, map[string]string{
		"noisy-skill": `head -c 10000 /dev/zero | tr '\0' 'x'`,
	})

	record := sb.Execute(context.Background(), "noisy-skill", request.Context{})
	// Not valid JSON so the run fails, but the capture stays bounded.
	assert.False(t, record.Success)
	assert.LessOrEqual(t, len(record.Stdout), 64)
}
