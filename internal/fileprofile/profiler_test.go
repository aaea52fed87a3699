package fileprofile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"apexflow/pkg/log"
)

func TestTruncateRuneBoundary(t *testing.T) {
	// 中文每字 3 字节，上限落在字中间时回退到边界
	s := strings.Repeat("数", 10)
	got := truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Errorf("truncated preview is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("数", 3) {
		t.Errorf("expected 3 runes kept, got %q", got)
	}

	if truncate("ascii", 10) != "ascii" {
		t.Error("short input should pass through unchanged")
	}
	if truncate("abcdef", 3) != "abc" {
		t.Error("ascii cut should land exactly on the limit")
	}
}

func TestProfileTextFile(t *testing.T) {
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger init failed: %v", err)
	}
	p := NewProfiler(logger)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("第一季度营收数据"), 0o644); err != nil {
		t.Fatalf("write fixture failed: %v", err)
	}

	profiles := p.ProfileAll([]string{path})
	prof, ok := profiles["notes.txt"].(Profile)
	if !ok {
		t.Fatalf("profile missing: %v", profiles)
	}
	if prof.Kind != "text" {
		t.Errorf("expected text kind, got %s", prof.Kind)
	}
	if prof.Preview != "第一季度营收数据" {
		t.Errorf("unexpected preview: %q", prof.Preview)
	}
	if prof.Error != "" {
		t.Errorf("unexpected error: %s", prof.Error)
	}
}
