//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDurationFromMs(t *testing.T) {
	if got := durationFromMs(1500); got != 1500*time.Millisecond {
		t.Errorf("got %v", got)
	}
	if got := durationFromMs(0); got != 0 {
		t.Errorf("zero ms = %v", got)
	}
	if got := durationFromMs(-5); got != 0 {
		t.Errorf("negative ms = %v", got)
	}
}

func TestFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := fileSize(path); got != 5 {
		t.Errorf("size = %d", got)
	}
	if got := fileSize(filepath.Join(t.TempDir(), "missing")); got != 0 {
		t.Errorf("missing file size = %d", got)
	}
	if got := fileSize(""); got != 0 {
		t.Errorf("empty path size = %d", got)
	}
}

func TestReadLimitedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	content := strings.Repeat("x", 100)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readLimitedFile(path, 10); len(got) != 10 {
		t.Errorf("capped read length = %d", len(got))
	}
	if got := readLimitedFile(path, 1000); got != content {
		t.Errorf("full read = %d bytes", len(got))
	}
	if got := readLimitedFile(path, 0); got != "" {
		t.Errorf("zero cap read = %q", got)
	}
	if got := readLimitedFile("", 10); got != "" {
		t.Errorf("empty path read = %q", got)
	}
}

func TestProcessStateHelpersNil(t *testing.T) {
	if cpuTimeMs(nil) != 0 || maxRSSKB(nil) != 0 || termSignal(nil) != 0 {
		t.Error("nil process state not handled")
	}
}
