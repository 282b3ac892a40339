package extract

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"ttharvest/pkg/models"
)

// rawEntry mirrors the yt-dlp info JSON fields we read. Timestamps are
// sometimes emitted as floats.
type rawEntry struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	WebpageURL string            `json:"webpage_url"`
	Title      string            `json:"title"`
	Timestamp  *float64          `json:"timestamp"`
	IsPinned   bool              `json:"is_pinned"`
	IsLive     *bool             `json:"is_live"`
	LiveStatus string            `json:"live_status"`
	UploaderID string            `json:"uploader_id"`
	ChannelID  string            `json:"channel_id"`
	Entries    []json.RawMessage `json:"entries"`
}

func (r rawEntry) toModel() models.ContentEntry {
	e := models.ContentEntry{
		ID:         r.ID,
		URL:        r.URL,
		WebpageURL: r.WebpageURL,
		Title:      r.Title,
		IsPinned:   r.IsPinned,
		IsLive:     r.IsLive != nil && *r.IsLive,
		LiveStatus: r.LiveStatus,
		UploaderID: r.UploaderID,
		ChannelID:  r.ChannelID,
	}
	if r.Timestamp != nil {
		ts := int64(*r.Timestamp)
		e.Timestamp = &ts
	}
	return e
}

// ParseEntries decodes yt-dlp --dump-json output: one JSON object per line.
// A line holding a whole playlist contributes its entries instead.
func ParseEntries(output string) ([]models.ContentEntry, error) {
	var entries []models.ContentEntry

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode entry: %w", err)
		}

		if len(raw.Entries) == 0 {
			entries = append(entries, raw.toModel())
			continue
		}
		for _, msg := range raw.Entries {
			var child rawEntry
			if err := json.Unmarshal(msg, &child); err != nil {
				return nil, fmt.Errorf("failed to decode playlist entry: %w", err)
			}
			if child.UploaderID == "" {
				child.UploaderID = raw.UploaderID
			}
			if child.ChannelID == "" {
				child.ChannelID = raw.ChannelID
			}
			entries = append(entries, child.toModel())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing output: %w", err)
	}

	return entries, nil
}
