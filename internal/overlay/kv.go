// internal/overlay/kv.go
package overlay

import (
	"database/sql"
	"fmt"
	"strings"
)

// KVGet returns the value stored under key, or ErrNotFound.
func (o *Overlay) KVGet(key string) (string, error) {
	var value string
	err := o.store.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: kv key %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

// KVSet stores value under key, replacing any existing value.
func (o *Overlay) KVSet(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("kv set: empty key")
	}
	_, err := o.store.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// KVList returns all keys with the given prefix, sorted.
func (o *Overlay) KVList(prefix string) ([]string, error) {
	rows, err := o.store.db.Query(
		`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		likePattern(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv list %s: %w", prefix, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// KVDelete removes key. Deleting an absent key is not an error.
func (o *Overlay) KVDelete(key string) error {
	_, err := o.store.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
