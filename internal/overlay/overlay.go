// internal/overlay/overlay.go
package overlay

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound marks a path or key absent from every layer.
var ErrNotFound = errors.New("not found")

// Entry is one name in a directory listing.
type Entry struct {
	Name  string
	IsDir bool
}

// Stats describes a file or directory in the merged view.
type Stats struct {
	Size  int64
	Mtime time.Time
	IsFile bool
	IsDir  bool
}

// Overlay is one storage layer with an optional base layer. File reads
// consult local storage first and fall through to the base on miss;
// writes and deletes touch local storage only.
type Overlay struct {
	store *Store
	base  *Overlay
}

// Open opens the overlay backed by the sqlite database at path. A nil
// base makes this a root layer (as stable is).
func Open(path string, base *Overlay) (*Overlay, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &Overlay{store: store, base: base}, nil
}

// Location returns the backing database path.
func (o *Overlay) Location() string {
	return o.store.Location()
}

// Close releases the backing database. The base layer is shared and is
// not closed.
func (o *Overlay) Close() error {
	return o.store.Close()
}

// normalize cleans a path to the canonical stored form: forward slashes,
// no leading slash, "" for the root. Both "/" and "." are accepted as
// the root.
func normalize(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// ReadFile returns the bytes stored at path, falling through to the
// base layer on a local miss.
func (o *Overlay) ReadFile(path string) ([]byte, error) {
	p := normalize(path)

	var data []byte
	err := o.store.db.QueryRow(`SELECT data FROM files WHERE path = ?`, p).Scan(&data)
	if err == nil {
		return data, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	if o.base != nil {
		return o.base.ReadFile(p)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// WriteFile stores bytes at path in the local layer only.
func (o *Overlay) WriteFile(path string, data []byte) error {
	p := normalize(path)
	if p == "" {
		return fmt.Errorf("write: empty path")
	}

	_, err := o.store.db.Exec(`
		INSERT INTO files (path, data, mtime) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, mtime = excluded.mtime
	`, p, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// Delete removes the local entry at path. Entries inherited from the
// base become visible again; there are no tombstones in this model.
func (o *Overlay) Delete(path string) error {
	p := normalize(path)
	_, err := o.store.db.Exec(`DELETE FROM files WHERE path = ?`, p)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// ReadDir returns the merged directory listing at path. Local entries
// shadow base entries of the same name. "/", "" and "." all address the
// root.
func (o *Overlay) ReadDir(path string) ([]Entry, error) {
	p := normalize(path)

	entries := make(map[string]Entry)
	found, err := o.collectDir(p, entries)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		out = append(out, entries[name])
	}
	return out, nil
}

// collectDir merges child entries of dir from this layer and its base
// into entries. Returns whether the directory exists in any layer.
// The root always exists.
func (o *Overlay) collectDir(dir string, entries map[string]Entry) (bool, error) {
	found := dir == ""

	if o.base != nil {
		baseFound, err := o.base.collectDir(dir, entries)
		if err != nil {
			return false, err
		}
		found = found || baseFound
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	rows, err := o.store.db.Query(
		`SELECT path FROM files WHERE path LIKE ? ESCAPE '\' OR path = ?`,
		likePattern(prefix)+"%", dir)
	if err != nil {
		return false, fmt.Errorf("readdir %s: %w", dir, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return false, fmt.Errorf("readdir %s: %w", dir, err)
		}
		if p == dir {
			// dir itself is a file, not a directory
			continue
		}
		found = true
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := rest[:idx]
			entries[name] = Entry{Name: name, IsDir: true}
		} else {
			// Local files shadow a base directory of the same name.
			entries[rest] = Entry{Name: rest, IsDir: false}
		}
	}
	return found, rows.Err()
}

// likePattern escapes LIKE metacharacters in a literal prefix.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

// Stat returns the merged-view stats for path.
func (o *Overlay) Stat(path string) (*Stats, error) {
	p := normalize(path)

	if p == "" {
		return &Stats{IsDir: true}, nil
	}

	var size int64
	var mtime int64
	err := o.store.db.QueryRow(`SELECT length(data), mtime FROM files WHERE path = ?`, p).
		Scan(&size, &mtime)
	if err == nil {
		return &Stats{Size: size, Mtime: time.Unix(mtime, 0), IsFile: true}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}

	// An implicit directory exists when any local path sits beneath it.
	var n int
	err = o.store.db.QueryRow(
		`SELECT COUNT(*) FROM files WHERE path LIKE ? ESCAPE '\'`,
		likePattern(p+"/")+"%").Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if n > 0 {
		return &Stats{IsDir: true}, nil
	}

	if o.base != nil {
		return o.base.Stat(p)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// ListLocalFiles returns every file path physically present in this
// layer (never the base) under the given prefix, sorted. The empty
// prefix lists the whole layer. This is the local-only enumeration the
// merge engine depends on.
func (o *Overlay) ListLocalFiles(prefix string) ([]string, error) {
	p := normalize(prefix)

	var rows *sql.Rows
	var err error
	if p == "" {
		rows, err = o.store.db.Query(`SELECT path FROM files ORDER BY path`)
	} else {
		rows, err = o.store.db.Query(
			`SELECT path FROM files WHERE path = ? OR path LIKE ? ESCAPE '\' ORDER BY path`,
			p, likePattern(p+"/")+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("list local files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("list local files: %w", err)
		}
		paths = append(paths, fp)
	}
	return paths, rows.Err()
}
