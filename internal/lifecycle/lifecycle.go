// internal/lifecycle/lifecycle.go
//
// Single canonical lifecycle storage for agent metadata. The store is
// the single source of truth for agent state: every state transition
// persists here before the runner takes its next step, and recovery
// after restart rebuilds the in-memory picture from these records alone.
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cairnhq/cairn/internal/agent"
	"github.com/cairnhq/cairn/internal/overlay"
)

// ErrNotFound marks an unknown agent id.
var ErrNotFound = errors.New("lifecycle record not found")

const keyPrefix = "agent:"

// Record is the persisted, authoritative state of one agent.
type Record struct {
	AgentID         string            `json:"agent_id"`
	Task            string            `json:"task"`
	Priority        int               `json:"priority"`
	State           agent.State       `json:"state"`
	CreatedAt       float64           `json:"created_at"`        // wall-clock seconds
	StateChangedAt  float64           `json:"state_changed_at"`
	OverlayLocation string            `json:"overlay_location"`
	Submission      *agent.Submission `json:"submission,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Validate enforces record invariants before persistence.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return fmt.Errorf("agent_id must be non-empty")
	}
	if r.StateChangedAt < r.CreatedAt {
		return fmt.Errorf("state_changed_at must be >= created_at")
	}
	return nil
}

// Store is a durable map of agent id to lifecycle record, backed by the
// bin overlay's KV namespace.
type Store struct {
	storage *overlay.Overlay
}

// NewStore wraps the given overlay as the lifecycle backing.
func NewStore(storage *overlay.Overlay) *Store {
	return &Store{storage: storage}
}

// Save upserts the record; whole-record replacement.
func (s *Store) Save(record *Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid lifecycle record: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode lifecycle record: %w", err)
	}
	return s.storage.KVSet(keyPrefix+record.AgentID, string(data))
}

// Load returns the record for agentID, or ErrNotFound.
func (s *Store) Load(agentID string) (*Record, error) {
	data, err := s.storage.KVGet(keyPrefix + agentID)
	if err != nil {
		if errors.Is(err, overlay.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("decode lifecycle record %s: %w", agentID, err)
	}
	return &record, nil
}

// Delete removes the record for agentID.
func (s *Store) Delete(agentID string) error {
	return s.storage.KVDelete(keyPrefix + agentID)
}

// ListAll returns every stored record.
func (s *Store) ListAll() ([]*Record, error) {
	keys, err := s.storage.KVList(keyPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.storage.KVGet(key)
		if err != nil {
			if errors.Is(err, overlay.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var record Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("decode lifecycle record %s: %w", key, err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// ListActive returns records whose state is neither accepted nor
// rejected. Errored records are included: they stay listed for audit,
// and recovery decides per call site whether to act on them.
func (s *Store) ListActive() ([]*Record, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	var active []*Record
	for _, r := range all {
		if r.State == agent.StateAccepted || r.State == agent.StateRejected {
			continue
		}
		active = append(active, r)
	}
	return active, nil
}

// CleanupOld deletes terminal records older than maxAge and unlinks the
// sqlite backing each names. Returns the number of records removed.
func (s *Store) CleanupOld(maxAge time.Duration) (int, error) {
	cutoff := float64(time.Now().Unix()) - maxAge.Seconds()

	all, err := s.ListAll()
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, record := range all {
		if !record.State.Terminal() {
			continue
		}
		if record.StateChangedAt >= cutoff {
			continue
		}

		if err := s.Delete(record.AgentID); err != nil {
			return cleaned, err
		}
		cleaned++

		if record.OverlayLocation != "" {
			if err := os.Remove(record.OverlayLocation); err != nil && !os.IsNotExist(err) {
				fmt.Printf("[lifecycle] cleanup: remove %s: %v\n", record.OverlayLocation, err)
			}
		}
	}
	return cleaned, nil
}
