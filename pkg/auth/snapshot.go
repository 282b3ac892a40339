// Package auth persists the browser session snapshot used to refresh the
// cookie credential, optionally encrypted at rest.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ttharvest/pkg/cookies"
	"ttharvest/pkg/fsutil"
)

// SnapshotFile is the file name used inside the session state directory
const SnapshotFile = "session.json"

// Errors
var (
	ErrSnapshotNotFound = errors.New("session snapshot not found")
	ErrInvalidSnapshot  = errors.New("invalid session snapshot")
)

// Snapshot is the browser state captured after a successful refresh
type Snapshot struct {
	Cookies    []cookies.Cookie `json:"cookies"`
	UserAgent  string           `json:"user_agent,omitempty"`
	CapturedAt time.Time        `json:"captured_at"`
}

// SnapshotStore saves and restores the session snapshot
type SnapshotStore interface {
	Load() (*Snapshot, error)
	Save(snapshot *Snapshot) error
	Exists() bool
	Clear() error
}

// FileSnapshotStore keeps the snapshot as plain JSON
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore creates a plain snapshot store under dir
func NewFileSnapshotStore(dir string) *FileSnapshotStore {
	return &FileSnapshotStore{path: filepath.Join(dir, SnapshotFile)}
}

// Path returns the snapshot file location
func (f *FileSnapshotStore) Path() string {
	return f.path
}

func (f *FileSnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &s, nil
}

func (f *FileSnapshotStore) Save(snapshot *Snapshot) error {
	if err := validate(snapshot); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return fsutil.WriteJSONAtomic(f.path, snapshot, 0600)
}

func (f *FileSnapshotStore) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && info.Size() > 0
}

func (f *FileSnapshotStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func validate(s *Snapshot) error {
	if s == nil || len(s.Cookies) == 0 {
		return ErrInvalidSnapshot
	}
	return nil
}

// SanitizeSnapshot returns a copy with cookie values masked, for display
func SanitizeSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Cookies = make([]cookies.Cookie, len(s.Cookies))
	for i, c := range s.Cookies {
		c.Value = maskString(c.Value)
		out.Cookies[i] = c
	}
	return &out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
