// internal/overlay/overlay_test.go
package overlay

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestPair(t *testing.T) (stable, agent *Overlay) {
	t.Helper()
	dir := t.TempDir()

	stable, err := Open(filepath.Join(dir, "stable.db"), nil)
	if err != nil {
		t.Fatalf("open stable: %v", err)
	}
	t.Cleanup(func() { stable.Close() })

	agent, err = Open(filepath.Join(dir, "agent.db"), stable)
	if err != nil {
		t.Fatalf("open agent: %v", err)
	}
	t.Cleanup(func() { agent.Close() })
	return stable, agent
}

func TestWriteThenRead(t *testing.T) {
	_, agent := openTestPair(t)

	if err := agent.WriteFile("src/main.go", []byte("package main")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := agent.ReadFile("src/main.go")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "package main" {
		t.Errorf("got %q", data)
	}
}

func TestReadFallsThroughToBase(t *testing.T) {
	stable, agent := openTestPair(t)

	if err := stable.WriteFile("README", []byte("orig")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := agent.ReadFile("README")
	if err != nil {
		t.Fatalf("ReadFile through base: %v", err)
	}
	if string(data) != "orig" {
		t.Errorf("got %q, want orig", data)
	}
}

func TestLocalShadowsBase(t *testing.T) {
	stable, agent := openTestPair(t)

	stable.WriteFile("README", []byte("orig"))
	agent.WriteFile("README", []byte("new"))

	data, err := agent.ReadFile("README")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("overlay should shadow base: got %q", data)
	}

	// The base is untouched.
	data, _ = stable.ReadFile("README")
	if string(data) != "orig" {
		t.Errorf("base mutated: got %q", data)
	}
}

func TestWritesNeverTouchBase(t *testing.T) {
	stable, agent := openTestPair(t)

	agent.WriteFile("only-in-overlay.txt", []byte("x"))

	_, err := stable.ReadFile("only-in-overlay.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from base, got %v", err)
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	_, agent := openTestPair(t)
	_, err := agent.ReadFile("nope.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRevealsBase(t *testing.T) {
	stable, agent := openTestPair(t)

	stable.WriteFile("f.txt", []byte("base"))
	agent.WriteFile("f.txt", []byte("local"))

	if err := agent.Delete("f.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	data, err := agent.ReadFile("f.txt")
	if err != nil {
		t.Fatalf("ReadFile after delete: %v", err)
	}
	if string(data) != "base" {
		t.Errorf("base entry should be visible after local delete, got %q", data)
	}
}

func TestReadDirMergedView(t *testing.T) {
	stable, agent := openTestPair(t)

	stable.WriteFile("docs/guide.md", []byte("g"))
	stable.WriteFile("shared.txt", []byte("s"))
	agent.WriteFile("src/main.go", []byte("m"))
	agent.WriteFile("shared.txt", []byte("overridden"))

	for _, root := range []string{"/", "", "."} {
		entries, err := agent.ReadDir(root)
		if err != nil {
			t.Fatalf("ReadDir(%q): %v", root, err)
		}
		got := map[string]bool{}
		for _, e := range entries {
			got[e.Name] = e.IsDir
		}
		if len(got) != 3 {
			t.Errorf("ReadDir(%q): got %d entries %v, want 3", root, len(got), got)
		}
		if !got["docs"] || !got["src"] {
			t.Errorf("ReadDir(%q): expected docs and src to be dirs: %v", root, got)
		}
		if got["shared.txt"] {
			t.Errorf("ReadDir(%q): shared.txt should be a file", root)
		}
	}
}

func TestReadDirSubdirectory(t *testing.T) {
	_, agent := openTestPair(t)

	agent.WriteFile("a/b/c.txt", []byte("1"))
	agent.WriteFile("a/d.txt", []byte("2"))

	entries, err := agent.ReadDir("a")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Sorted: "b" then "d.txt"
	if entries[0].Name != "b" || !entries[0].IsDir {
		t.Errorf("entry 0 = %+v, want dir b", entries[0])
	}
	if entries[1].Name != "d.txt" || entries[1].IsDir {
		t.Errorf("entry 1 = %+v, want file d.txt", entries[1])
	}
}

func TestReadDirMissing(t *testing.T) {
	_, agent := openTestPair(t)
	_, err := agent.ReadDir("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStat(t *testing.T) {
	stable, agent := openTestPair(t)

	stable.WriteFile("base.txt", []byte("12345"))
	agent.WriteFile("dir/file.txt", []byte("xyz"))

	st, err := agent.Stat("dir/file.txt")
	if err != nil {
		t.Fatalf("Stat file: %v", err)
	}
	if !st.IsFile || st.Size != 3 {
		t.Errorf("file stat = %+v", st)
	}

	st, err = agent.Stat("dir")
	if err != nil {
		t.Fatalf("Stat dir: %v", err)
	}
	if !st.IsDir {
		t.Errorf("dir stat = %+v", st)
	}

	st, err = agent.Stat("base.txt")
	if err != nil {
		t.Fatalf("Stat through base: %v", err)
	}
	if !st.IsFile || st.Size != 5 {
		t.Errorf("base file stat = %+v", st)
	}

	if _, err := agent.Stat("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListLocalFilesExcludesBase(t *testing.T) {
	stable, agent := openTestPair(t)

	stable.WriteFile("inherited.txt", []byte("i"))
	agent.WriteFile("mine/a.txt", []byte("a"))
	agent.WriteFile("mine/b.txt", []byte("b"))

	paths, err := agent.ListLocalFiles("")
	if err != nil {
		t.Fatalf("ListLocalFiles: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %v, want 2 local paths", paths)
	}
	for _, p := range paths {
		if p == "inherited.txt" {
			t.Error("inherited base file listed as local")
		}
	}

	scoped, err := agent.ListLocalFiles("mine")
	if err != nil {
		t.Fatalf("ListLocalFiles(mine): %v", err)
	}
	if len(scoped) != 2 {
		t.Errorf("prefix listing got %v", scoped)
	}
}

func TestKVRoundTrip(t *testing.T) {
	_, agent := openTestPair(t)

	if err := agent.KVSet("submission", `{"summary":"s"}`); err != nil {
		t.Fatalf("KVSet: %v", err)
	}
	v, err := agent.KVGet("submission")
	if err != nil {
		t.Fatalf("KVGet: %v", err)
	}
	if v != `{"summary":"s"}` {
		t.Errorf("got %q", v)
	}

	if err := agent.KVDelete("submission"); err != nil {
		t.Fatalf("KVDelete: %v", err)
	}
	if _, err := agent.KVGet("submission"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKVListPrefix(t *testing.T) {
	_, agent := openTestPair(t)

	agent.KVSet("agent:one", "1")
	agent.KVSet("agent:two", "2")
	agent.KVSet("other", "3")

	keys, err := agent.KVList("agent:")
	if err != nil {
		t.Fatalf("KVList: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %v, want 2 agent keys", keys)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer.db")

	ov, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ov.WriteFile("keep.txt", []byte("kept"))
	ov.KVSet("k", "v")
	if err := ov.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	data, err := reopened.ReadFile("keep.txt")
	if err != nil || string(data) != "kept" {
		t.Errorf("file not persisted: %q, %v", data, err)
	}
	v, err := reopened.KVGet("k")
	if err != nil || v != "v" {
		t.Errorf("kv not persisted: %q, %v", v, err)
	}
}
