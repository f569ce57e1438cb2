// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecureWrite_SuccessfulWrite(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.txt")

	testData := []byte("test content")
	if err := SecureWrite(testFile, testData, nil); err != nil {
		t.Fatalf("SecureWrite() failed: %v", err)
	}

	// Verify file exists and has correct content
	content, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}

	if string(content) != string(testData) {
		t.Errorf("Expected content %s, got %s", testData, content)
	}

	// Verify no temp files remain
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}

	for _, entry := range entries {
		if entry.Name() != "test.txt" {
			t.Errorf("Unexpected file in directory: %s", entry.Name())
		}
	}
}

func TestSecureWrite_BackupCreation(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.txt")

	if err := SecureWrite(testFile, []byte("initial content"), nil); err != nil {
		t.Fatalf("SecureWrite() failed: %v", err)
	}

	opts := &SecureWriteOptions{CreateBackup: true}
	if err := SecureWrite(testFile, []byte("updated content"), opts); err != nil {
		t.Fatalf("SecureWrite() with backup failed: %v", err)
	}

	backup, err := os.ReadFile(testFile + ".bak")
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}
	if string(backup) != "initial content" {
		t.Errorf("Expected backup to hold initial content, got %s", backup)
	}

	content, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated content" {
		t.Errorf("Expected updated content, got %s", content)
	}
}

func TestSecureWrite_CreatesParentDirectories(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "nested", "deep", "test.txt")

	if err := SecureWrite(testFile, []byte("data"), nil); err != nil {
		t.Fatalf("SecureWrite() failed: %v", err)
	}

	if _, err := os.Stat(testFile); err != nil {
		t.Errorf("File should exist after write: %v", err)
	}
}

func TestIsValidSlug(t *testing.T) {
	valid := []string{"tech-debt-tracker", "security-scanner", "a", "skill2"}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Errorf("Expected %q to be a valid slug", s)
		}
	}

	invalid := []string{"", "Upper", "has space", "semi;colon", "dot.dot", "../escape", "trailing-", "-leading", "under_score"}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Errorf("Expected %q to be rejected", s)
		}
	}

	if IsValidSlug(strings.Repeat("a;", 3)) {
		t.Error("Expected slug with semicolons to be rejected")
	}
}
