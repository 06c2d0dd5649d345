package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveDirRejectsEmptyAndMissing(t *testing.T) {
	if _, err := resolveDir("   "); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := resolveDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestResolveDirRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.sql")
	if err := os.WriteFile(path, []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := resolveDir(path); err == nil {
		t.Fatal("expected error for non-directory path")
	}
}

func TestResolveDirAcceptsDirectories(t *testing.T) {
	dir := t.TempDir()
	resolved, err := resolveDir(dir)
	if err != nil {
		t.Fatalf("resolveDir failed: %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Errorf("expected absolute path, got %q", resolved)
	}
}

func TestFileURL(t *testing.T) {
	url := fileURL("/var/lib/migrations")
	if url != "file:///var/lib/migrations" {
		t.Errorf("unexpected url %q", url)
	}
	if !strings.HasPrefix(fileURL("relative/dir"), "file:///") {
		t.Errorf("expected rooted file url, got %q", fileURL("relative/dir"))
	}
}
