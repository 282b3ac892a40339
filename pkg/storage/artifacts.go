package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Artifacts manages the audio output directory
type Artifacts struct {
	dir    string
	format string
	known  map[string]bool
	mu     sync.RWMutex
}

// NewArtifacts creates the directory if needed and indexes existing files
func NewArtifacts(dir, format string) (*Artifacts, error) {
	if format == "" {
		format = "mp3"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	a := &Artifacts{
		dir:    dir,
		format: format,
		known:  make(map[string]bool),
	}
	if err := a.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return a, nil
}

func (a *Artifacts) scanExistingFiles() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	ext := "." + a.format
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ext {
			a.known[strings.TrimSuffix(entry.Name(), ext)] = true
		}
	}
	return nil
}

// OutputTemplate is the yt-dlp output template for a record id
func (a *Artifacts) OutputTemplate(recordID string) string {
	return filepath.Join(a.dir, recordID+".%(ext)s")
}

// Path is where the transcoded audio for a record id ends up
func (a *Artifacts) Path(recordID string) string {
	return filepath.Join(a.dir, recordID+"."+a.format)
}

// Remove deletes the audio of a record that could not be stored
func (a *Artifacts) Remove(recordID string) error {
	a.mu.Lock()
	delete(a.known, recordID)
	a.mu.Unlock()

	if err := os.Remove(a.Path(recordID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Dir returns the output directory
func (a *Artifacts) Dir() string {
	return a.dir
}

// Count returns the number of audio files known
func (a *Artifacts) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.known)
}
