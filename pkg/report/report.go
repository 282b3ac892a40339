package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ttharvest/pkg/fsutil"
	"ttharvest/pkg/models"
)

// Report is the persisted form of a finished run
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`

	Totals Totals `json:"totals"`

	Succeeded []models.SourceResult `json:"succeeded"`
	Skipped   []models.SourceResult `json:"skipped"`
	Failed    []models.SourceResult `json:"failed"`
}

// Totals counts sources per outcome
type Totals struct {
	Sources   int `json:"sources"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// FromSummary converts a run summary to a Report
func FromSummary(s *models.Summary) *Report {
	r := &Report{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Duration:   s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String(),
		Succeeded:  nonNil(s.Succeeded()),
		Skipped:    nonNil(s.Skipped()),
		Failed:     nonNil(s.Failed()),
	}
	r.Totals = Totals{
		Sources:   len(s.Results),
		Succeeded: len(r.Succeeded),
		Skipped:   len(r.Skipped),
		Failed:    len(r.Failed),
	}
	return r
}

// Summary rebuilds a run summary, grouped by outcome
func (r *Report) Summary() *models.Summary {
	results := make([]models.SourceResult, 0, r.Totals.Sources)
	results = append(results, r.Succeeded...)
	results = append(results, r.Skipped...)
	results = append(results, r.Failed...)
	return &models.Summary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Results:    results,
	}
}

func nonNil(in []models.SourceResult) []models.SourceResult {
	if in == nil {
		return []models.SourceResult{}
	}
	return in
}

// Writer stores run reports as JSON files in a directory
type Writer struct {
	dir string
}

// NewWriter creates a Writer for dir
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// FileName returns the report file name for a run
func FileName(s *models.Summary) string {
	return fmt.Sprintf("run_%s_%s.json", s.StartedAt.Format("20060102_150405"), s.RunID)
}

// Write saves the summary and returns the report path
func (w *Writer) Write(s *models.Summary) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(w.dir, FileName(s))
	if err := fsutil.WriteJSONAtomic(path, FromSummary(s), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Load reads a report file
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// Latest returns the path of the newest report in dir, or "" if none exist
func (w *Writer) Latest() (string, error) {
	entries, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "run_") && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	// the timestamp prefix sorts chronologically
	sort.Strings(names)
	return filepath.Join(w.dir, names[len(names)-1]), nil
}
