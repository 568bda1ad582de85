// Package persist writes and reads the durable snapshot document.
//
// The snapshot is the sole persisted state: active tickets, claim
// assignments, and completion stats in one JSON file. Every successful
// mutation overwrites the whole document; there is no log and no
// versioning. In-memory state stays authoritative for the running process
// when a save fails.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrNotFound means no snapshot exists yet (cold start).
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt means the snapshot exists but cannot be parsed.
	ErrCorrupt = errors.New("snapshot corrupt")
	// ErrIO wraps write failures.
	ErrIO = errors.New("snapshot write failed")
)

// TicketRecord is the serialized form of an active ticket.
type TicketRecord struct {
	ChannelRef  string            `json:"channelRef"`
	RequesterID string            `json:"requesterId"`
	CreatedAt   string            `json:"createdAt"` // RFC 3339
	TierKey     string            `json:"tierKey"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload"`
}

// Snapshot is the full durable record.
type Snapshot struct {
	Tickets map[string]TicketRecord `json:"activeTickets"` // by channelRef
	Claims  map[string]string       `json:"claimedTickets"` // channelRef -> staffID
	Stats   map[string]int          `json:"stats"`          // staffID -> completed count
	// StatsOrder preserves first-completion order for stable rank tie-breaks.
	StatsOrder []string `json:"statsOrder,omitempty"`
}

// Empty returns a snapshot with initialized maps.
func Empty() *Snapshot {
	return &Snapshot{
		Tickets: make(map[string]TicketRecord),
		Claims:  make(map[string]string),
		Stats:   make(map[string]int),
	}
}

// FileStore persists snapshots to a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save overwrites the snapshot document. The write goes to a temp file in
// the same directory followed by a rename, so a crash mid-write never
// leaves a half-written document behind.
func (f *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrIO, err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Load reads the snapshot document. Returns ErrNotFound when the file does
// not exist and ErrCorrupt when it cannot be parsed.
func (f *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.Tickets == nil {
		snap.Tickets = make(map[string]TicketRecord)
	}
	if snap.Claims == nil {
		snap.Claims = make(map[string]string)
	}
	if snap.Stats == nil {
		snap.Stats = make(map[string]int)
	}
	return &snap, nil
}
