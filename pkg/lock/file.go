package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ttharvest/pkg/logger"
)

// holder is written into the lock file
type holder struct {
	PID      int       `json:"pid"`
	Host     string    `json:"host"`
	Acquired time.Time `json:"time"`
}

// FileLock is an O_EXCL lock file. A lock file whose modification time is
// older than the TTL is considered abandoned and taken over; the holder
// refreshes it while running.
type FileLock struct {
	path      string
	ttl       time.Duration
	heartbeat time.Duration
	logger    logger.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewFileLock creates a FileLock at path
func NewFileLock(path string, ttl time.Duration, log logger.Logger) *FileLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileLock{
		path:      path,
		ttl:       ttl,
		heartbeat: ttl / 3,
		logger:    log.WithField("component", "lock"),
	}
}

// Path returns the lock file location
func (l *FileLock) Path() string {
	return l.path
}

func (l *FileLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stop != nil {
		return fmt.Errorf("%w: already held by this process", ErrLocked)
	}
	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			host, _ := os.Hostname()
			writeErr := json.NewEncoder(f).Encode(holder{PID: os.Getpid(), Host: host, Acquired: time.Now()})
			closeErr := f.Close()
			if err := errors.Join(writeErr, closeErr); err != nil {
				os.Remove(l.path)
				return fmt.Errorf("failed to write lock file: %w", err)
			}
			l.startHeartbeat()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		fi, err := os.Stat(l.path)
		if err != nil {
			// Removed between the open and the stat.
			if os.IsNotExist(err) && attempt < 3 {
				continue
			}
			return fmt.Errorf("failed to inspect lock file: %w", err)
		}

		age := time.Since(fi.ModTime())
		if age < l.ttl || attempt >= 3 {
			return fmt.Errorf("%w: %s", ErrLocked, l.describe())
		}

		l.logger.WithFields(map[string]interface{}{
			"path": l.path,
			"age":  age.Round(time.Second).String(),
		}).Warn("Taking over stale lock")
		ok, err := l.takeOver(fi)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrLocked, l.describe())
		}
	}
}

// takeOver moves the stale lock file aside and deletes it only if it is
// still the file that was inspected and still stale. Otherwise another
// process got there first and the moved file is put back.
func (l *FileLock) takeOver(inspected os.FileInfo) (bool, error) {
	aside := fmt.Sprintf("%s.stale.%d.%d", l.path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(l.path, aside); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to move stale lock: %w", err)
	}

	moved, err := os.Stat(aside)
	if err == nil && os.SameFile(inspected, moved) && time.Since(moved.ModTime()) >= l.ttl {
		if err := os.Remove(aside); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		return true, nil
	}

	// Link fails if a new lock already exists, which then stays authoritative.
	if err := os.Link(aside, l.path); err != nil && !os.IsExist(err) {
		l.logger.WithError(err).Warn("Failed to restore lock file")
	}
	os.Remove(aside)
	return false, nil
}

func (l *FileLock) describe() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return l.path
	}
	var h holder
	if err := json.Unmarshal(data, &h); err != nil {
		return l.path
	}
	return fmt.Sprintf("%s (pid %d on %s since %s)", l.path, h.PID, h.Host, h.Acquired.Format(time.RFC3339))
}

func (l *FileLock) startHeartbeat() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		t := time.NewTicker(l.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				now := time.Now()
				if err := os.Chtimes(l.path, now, now); err != nil {
					l.logger.WithError(err).Warn("Lock heartbeat failed")
				}
			}
		}
	}(l.stop, l.done)
}

func (l *FileLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stop == nil {
		return nil
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
