// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := AtomicWriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(path, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "new" {
		t.Errorf("got %q, want %q", content, "new")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "日本語テキスト", 5, "日本..."},
		{"tiny max", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateRunesLength(t *testing.T) {
	got := TruncateRunes(strings.Repeat("a", 80), 50)
	if n := len([]rune(got)); n != 50 {
		t.Errorf("rune length = %d, want 50", n)
	}
	if !strings.HasSuffix(got, Ellipsis) {
		t.Errorf("%q should end with ellipsis", got)
	}
}

func TestFoldWhitespace(t *testing.T) {
	got := FoldWhitespace("  line one\n\nline\ttwo  ")
	if got != "line one line two" {
		t.Errorf("FoldWhitespace = %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("   \n\t", 50); got != "" {
		t.Errorf("Preview of blank = %q, want empty", got)
	}

	// "e" + combining acute composes to a single rune under NFC.
	if got := Preview("cafe\u0301", 50); got != "caf\u00e9" {
		t.Errorf("Preview did not normalise: %q", got)
	}

	if got := Preview("Hello\nworld", 50); got != "Hello world" {
		t.Errorf("Preview = %q", got)
	}
}
