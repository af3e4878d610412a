// internal/watcher/watcher_test.go
package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cairnhq/cairn/internal/overlay"
)

func TestInitialSyncMirrorsFiles(t *testing.T) {
	root := t.TempDir()

	os.MkdirAll(filepath.Join(root, "src"), 0755)
	os.WriteFile(filepath.Join(root, "README"), []byte("readme"), 0644)
	os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644)

	stable, err := overlay.Open(filepath.Join(t.TempDir(), "stable.db"), nil)
	if err != nil {
		t.Fatalf("open stable: %v", err)
	}
	defer stable.Close()

	w := New(root, stable)
	if err := w.InitialSync(); err != nil {
		t.Fatalf("InitialSync: %v", err)
	}

	data, err := stable.ReadFile("README")
	if err != nil || string(data) != "readme" {
		t.Errorf("README not mirrored: %q, %v", data, err)
	}
	data, err = stable.ReadFile("src/main.go")
	if err != nil || string(data) != "package main" {
		t.Errorf("src/main.go not mirrored: %q, %v", data, err)
	}
}

func TestInitialSyncSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()

	os.MkdirAll(filepath.Join(root, ".git"), 0755)
	os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0755)
	os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0644)
	os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(root, "kept.txt"), []byte("k"), 0644)

	stable, err := overlay.Open(filepath.Join(t.TempDir(), "stable.db"), nil)
	if err != nil {
		t.Fatalf("open stable: %v", err)
	}
	defer stable.Close()

	w := New(root, stable)
	if err := w.InitialSync(); err != nil {
		t.Fatalf("InitialSync: %v", err)
	}

	if _, err := stable.ReadFile(".git/HEAD"); err == nil {
		t.Error(".git contents should be ignored")
	}
	if _, err := stable.ReadFile("node_modules/pkg/index.js"); err == nil {
		t.Error("node_modules contents should be ignored")
	}
	if _, err := stable.ReadFile("kept.txt"); err != nil {
		t.Error("regular file should be mirrored")
	}
}

func TestShouldIgnore(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	cases := map[string]bool{
		filepath.Join(root, ".git", "config"):      true,
		filepath.Join(root, "a", "__pycache__"):    true,
		filepath.Join(root, "src", "main.go"):      false,
		filepath.Join(root, "gitignore-lookalike"): false,
		"/outside/the/root":                        true,
	}

	for path, want := range cases {
		if got := w.shouldIgnore(path); got != want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", path, got, want)
		}
	}
}
