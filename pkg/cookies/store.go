package cookies

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ttharvest/pkg/fsutil"
	"ttharvest/pkg/logger"
)

const (
	// noExpiryHorizon replaces zero or negative expiries at export time
	noExpiryHorizon = 365 * 24 * time.Hour

	// maxExpiredRatio is the share of expired cookies above which a file is stale
	maxExpiredRatio = 0.5

	archiveTimeFormat = "20060102_150405"
)

// Credential is an exported cookie set
type Credential struct {
	Cookies    []Cookie
	CapturedAt time.Time
	Path       string
}

// Validity summarizes a cookie file check
type Validity struct {
	Path    string
	Exists  bool
	Total   int
	Expired int
	Valid   bool
}

// ExpiredRatio returns the share of expired cookies
func (v Validity) ExpiredRatio() float64 {
	if v.Total == 0 {
		return 0
	}
	return float64(v.Expired) / float64(v.Total)
}

// StoreOptions configures a Store
type StoreOptions struct {
	// Dir holds the current file and the timestamped archives
	Dir string
	// CurrentFile is the name of the canonical cookie file inside Dir
	CurrentFile string
	// ArchivePrefix prefixes archive names, e.g. "tiktok" gives tiktok_20240101_120000.txt
	ArchivePrefix string
	// Domain restricts exports to cookies whose domain contains it
	Domain string
}

// Store owns the current cookie file and its archives
type Store struct {
	opts   StoreOptions
	now    func() time.Time
	logger logger.Logger
}

// NewStore creates a Store
func NewStore(opts StoreOptions, log logger.Logger) *Store {
	if opts.CurrentFile == "" {
		opts.CurrentFile = "tiktok_refreshed.txt"
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "tiktok"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		opts:   opts,
		now:    time.Now,
		logger: log,
	}
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// CurrentPath returns the path of the canonical cookie file
func (s *Store) CurrentPath() string {
	return filepath.Join(s.opts.Dir, s.opts.CurrentFile)
}

// Exists reports whether the current cookie file exists
func (s *Store) Exists() bool {
	info, err := os.Stat(s.CurrentPath())
	return err == nil && !info.IsDir()
}

// Check inspects the current cookie file. A missing file is not an error.
func (s *Store) Check() (Validity, error) {
	v := Validity{Path: s.CurrentPath()}

	cookies, err := ParseFile(v.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		v.Exists = true
		return v, err
	}
	v.Exists = true
	v.Total = len(cookies)

	now := s.now()
	for _, c := range cookies {
		if c.Expired(now) {
			v.Expired++
		}
	}

	v.Valid = v.Total > 0 && v.ExpiredRatio() <= maxExpiredRatio
	return v, nil
}

// IsValid reports whether the current cookie file is usable
func (s *Store) IsValid() bool {
	v, err := s.Check()
	if err != nil {
		s.logger.WithError(err).WithField("path", v.Path).Warn("Cookie file is unreadable")
		return false
	}

	if v.Exists && !v.Valid {
		s.logger.WarnWithFields("Cookie file is stale", map[string]interface{}{
			"path":    v.Path,
			"total":   v.Total,
			"expired": v.Expired,
		})
	}
	return v.Valid
}

// Load reads the current credential
func (s *Store) Load() (*Credential, error) {
	path := s.CurrentPath()
	cookies, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &Credential{
		Cookies:    cookies,
		CapturedAt: info.ModTime(),
		Path:       path,
	}, nil
}

// Export keeps the platform cookies, writes a timestamped archive and
// atomically replaces the current cookie file.
func (s *Store) Export(all []Cookie) (*Credential, error) {
	now := s.now()

	cookies := s.filter(all, now)
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies for domain %q among %d captured", s.opts.Domain, len(all))
	}

	data := Format(cookies)

	if err := os.MkdirAll(s.opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cookie directory: %w", err)
	}

	archive, err := s.writeArchive(data, now)
	if err != nil {
		return nil, fmt.Errorf("failed to write cookie archive: %w", err)
	}

	current := s.CurrentPath()
	if err := fsutil.WriteFileAtomic(current, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to replace current cookie file: %w", err)
	}

	s.logger.InfoWithFields("Cookies exported", map[string]interface{}{
		"count":   len(cookies),
		"current": current,
		"archive": archive,
	})

	return &Credential{
		Cookies:    cookies,
		CapturedAt: now,
		Path:       current,
	}, nil
}

// writeArchive creates a new archive file. Exports within the same second
// get a numeric suffix instead of overwriting each other.
func (s *Store) writeArchive(data []byte, now time.Time) (string, error) {
	base := fmt.Sprintf("%s_%s", s.opts.ArchivePrefix, now.Format(archiveTimeFormat))
	for n := 1; n <= 100; n++ {
		name := base + ".txt"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.txt", base, n)
		}
		path := filepath.Join(s.opts.Dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, writeErr := f.Write(data)
		if err := errors.Join(writeErr, f.Close()); err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("too many archives named %s", base)
}

func (s *Store) filter(all []Cookie, now time.Time) []Cookie {
	domain := strings.ToLower(s.opts.Domain)
	farFuture := now.Add(noExpiryHorizon).Unix()

	out := make([]Cookie, 0, len(all))
	for _, c := range all {
		if domain != "" && !strings.Contains(strings.ToLower(c.Domain), domain) {
			continue
		}
		if c.Expires <= 0 {
			c.Expires = farFuture
		}
		out = append(out, c)
	}
	return out
}
