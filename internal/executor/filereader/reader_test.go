package filereader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadReturnsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fe.log")
	if err := os.WriteFile(path, []byte("log line\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out["content"] != "log line\n" {
		t.Errorf("content = %v", out["content"])
	}
	if out["file_path"] != path {
		t.Errorf("file_path = %v", out["file_path"])
	}
	if out["size_bytes"] != 9 {
		t.Errorf("size_bytes = %v, want 9", out["size_bytes"])
	}
}

func TestReadMissingFileIsErrorStructure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")

	out, err := Read(path)
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	if _, ok := out["error"].(string); !ok {
		t.Errorf("error structure missing: %v", out)
	}
	if out["file_path"] != path {
		t.Errorf("file_path = %v", out["file_path"])
	}
}

func TestIsLarge(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small.log")
	os.WriteFile(small, []byte("tiny"), 0o644)
	if IsLarge(small) {
		t.Errorf("small file flagged large")
	}

	big := filepath.Join(dir, "big.log")
	os.WriteFile(big, []byte(strings.Repeat("x", LargeFileThreshold+1)), 0o644)
	if !IsLarge(big) {
		t.Errorf("oversized file not flagged")
	}

	if IsLarge(filepath.Join(dir, "absent.log")) {
		t.Errorf("missing file must not be large")
	}
}
