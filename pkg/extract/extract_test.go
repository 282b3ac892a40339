package extract

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/locator"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

func TestParseEntries(t *testing.T) {
	output := strings.Join([]string{
		`{"id": "1", "url": "https://www.tiktok.com/@a/video/1", "title": "first", "timestamp": 1700000000, "uploader_id": "SEC"}`,
		`WARNING: something noisy`,
		``,
		`{"id": "2", "title": "pinned", "timestamp": 1700000100.0, "is_pinned": true, "is_live": null}`,
		`{"id": "3", "title": "live", "is_live": true, "live_status": "is_live"}`,
	}, "\n")

	entries, err := ParseEntries(output)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "SEC", entries[0].UploaderID)
	require.NotNil(t, entries[0].Timestamp)
	assert.Equal(t, int64(1700000000), *entries[0].Timestamp)
	assert.True(t, entries[1].IsPinned)
	assert.Equal(t, int64(1700000100), *entries[1].Timestamp)
	assert.False(t, entries[1].IsLive)
	assert.True(t, entries[2].IsLive)
	assert.Nil(t, entries[2].Timestamp)
}

func TestParseEntriesPlaylistObject(t *testing.T) {
	output := `{"id": "user", "uploader_id": "SEC", "entries": [{"id": "9", "timestamp": 5}, {"id": "8", "channel_id": "C"}]}`

	entries, err := ParseEntries(output)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SEC", entries[0].UploaderID)
	assert.Equal(t, "C", entries[1].ChannelID)
}

func TestParseEntriesInvalid(t *testing.T) {
	_, err := ParseEntries(`{"id": 1`)
	assert.Error(t, err)
}

type recordedRun struct {
	name string
	args []string
}

func TestSecondaryListArgs(t *testing.T) {
	var runs []recordedRun
	run := func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		runs = append(runs, recordedRun{name, args})
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "listing must be time bounded")
		return []byte(`{"id": "1", "timestamp": 10}`), nil, nil
	}

	s := NewSecondary(Options{Binary: "/usr/bin/yt-dlp", ListTimeout: time.Minute}, run, logger.NewNopLogger())
	entries, err := s.List(context.Background(), models.ListRequest{
		Target:        "https://www.tiktok.com/@alice",
		ExtractorArgs: "tiktok:skip=api",
		Limit:         10,
		CookiesFile:   "cookies/tiktok_refreshed.txt",
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.Len(t, runs, 1)
	assert.Equal(t, "/usr/bin/yt-dlp", runs[0].name)
	assert.Equal(t, []string{
		"--cookies", "cookies/tiktok_refreshed.txt",
		"--skip-download",
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		"--playlist-items", "1-10",
		"--extractor-args", "tiktok:skip=api",
		"https://www.tiktok.com/@alice",
	}, runs[0].args)
}

func TestSecondaryRequiresCookies(t *testing.T) {
	s := NewSecondary(Options{}, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		t.Fatal("runner must not be called without cookies")
		return nil, nil, nil
	}, logger.NewNopLogger())

	_, err := s.List(context.Background(), models.ListRequest{Target: "x"})
	assert.ErrorIs(t, err, errors.ErrNoCredential)
}

func TestSecondaryErrorCarriesStderr(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		stderr := "[tiktok] Extracting URL\nERROR: [TikTok] alice: Unable to extract secondary user ID\n"
		return nil, []byte(stderr), stderrors.New("exit status 1")
	}
	s := NewSecondary(Options{}, run, logger.NewNopLogger())

	_, err := s.List(context.Background(), models.ListRequest{Target: "x", CookiesFile: "c.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to extract secondary user ID")
	assert.Equal(t, errors.NotResolvable, errors.Classify(err))
}

func TestSecondaryDownload(t *testing.T) {
	dir := t.TempDir()
	expected := filepath.Join(dir, "t_alice_1.mp3")

	var got []string
	run := func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		got = args
		return nil, nil, os.WriteFile(expected, []byte("audio"), 0644)
	}
	s := NewSecondary(Options{}, run, logger.NewNopLogger())

	path, err := s.Download(context.Background(), DownloadRequest{
		URL:            "https://www.tiktok.com/@alice/video/1",
		OutputTemplate: filepath.Join(dir, "t_alice_1.%(ext)s"),
		ExpectedPath:   expected,
		CookiesFile:    "c.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, expected, path)
	assert.Equal(t, []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--no-warnings",
		"-o", filepath.Join(dir, "t_alice_1.%(ext)s"),
		"--cookies", "c.txt",
		"https://www.tiktok.com/@alice/video/1",
	}, got)
}

func TestSecondaryDownloadMissingArtifact(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) { return nil, nil, nil }
	s := NewSecondary(Options{}, run, logger.NewNopLogger())

	_, err := s.Download(context.Background(), DownloadRequest{URL: "u", ExpectedPath: filepath.Join(t.TempDir(), "none.mp3")})
	assert.Error(t, err)
}

// fakeStrategy is an in-memory Strategy
type fakeStrategy struct {
	kind      models.StrategyKind
	entries   []models.ContentEntry
	listErr   error
	lists     []models.ListRequest
	downloads []DownloadRequest
	dlErr     error
}

func (f *fakeStrategy) Kind() models.StrategyKind { return f.kind }

func (f *fakeStrategy) List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error) {
	f.lists = append(f.lists, req)
	return f.entries, f.listErr
}

func (f *fakeStrategy) Download(ctx context.Context, req DownloadRequest) (string, error) {
	f.downloads = append(f.downloads, req)
	if f.dlErr != nil {
		return "", f.dlErr
	}
	return req.ExpectedPath, nil
}

type staticResolver struct{ target models.ResolvedTarget }

func (s staticResolver) Resolve(ctx context.Context, handle string, force bool) (models.ResolvedTarget, error) {
	return s.target, nil
}

type fakeCreds struct{ exists, valid bool }

func (f fakeCreds) Exists() bool        { return f.exists }
func (f fakeCreds) IsValid() bool       { return f.valid }
func (f fakeCreds) CurrentPath() string { return "cookies/current.txt" }

type dirArtifacts struct{ dir string }

func (d dirArtifacts) OutputTemplate(id string) string { return filepath.Join(d.dir, id+".%(ext)s") }
func (d dirArtifacts) Path(id string) string           { return filepath.Join(d.dir, id+".mp3") }
func (d dirArtifacts) Remove(id string) error          { return os.Remove(d.Path(id)) }

func ts(v int64) *int64 { return &v }

func newChain(primary, secondary *fakeStrategy, creds fakeCreds) *Chain {
	return NewChain(primary, secondary,
		staticResolver{models.StableIDTarget("SEC")},
		locator.New("https://www.tiktok.com", 10),
		creds,
		dirArtifacts{dir: "downloads/audio"},
		logger.NewNopLogger())
}

func TestChainPrimarySucceeds(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, entries: []models.ContentEntry{
		{ID: "1", Title: "old", Timestamp: ts(100)},
		{ID: "3", Title: "new", Timestamp: ts(150)},
	}}
	secondary := &fakeStrategy{kind: models.StrategySecondary}
	c := newChain(primary, secondary, fakeCreds{exists: true, valid: true})

	loc, err := c.Locate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://www.tiktok.com/@alice/video/3", loc.URL)
	assert.Equal(t, "new", loc.Title)
	assert.Equal(t, models.StrategyPrimary, loc.Strategy)
	assert.Empty(t, secondary.lists)

	assert.Equal(t, "tiktokuser:SEC", primary.lists[0].Target)
	assert.Equal(t, "tiktok:skip=web", primary.lists[0].ExtractorArgs)
	assert.Equal(t, "cookies/current.txt", primary.lists[0].CookiesFile)

	path, err := c.Download(context.Background(), loc, "t_alice_1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("downloads/audio", "t_alice_1.mp3"), path)
	assert.Len(t, primary.downloads, 1)
	assert.Empty(t, secondary.downloads)
}

func TestChainFallsBackToSecondaryAndSticks(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, listErr: stderrors.New("ERROR: login required")}
	secondary := &fakeStrategy{kind: models.StrategySecondary, entries: []models.ContentEntry{{ID: "7", Timestamp: ts(1)}}}
	c := newChain(primary, secondary, fakeCreds{exists: true, valid: true})

	loc, err := c.Locate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StrategySecondary, loc.Strategy)
	require.Len(t, secondary.lists, 1)
	assert.Equal(t, "https://www.tiktok.com/@alice", secondary.lists[0].Target)
	assert.Equal(t, "tiktok:skip=api", secondary.lists[0].ExtractorArgs)

	_, err = c.Download(context.Background(), loc, "t_alice_2")
	require.NoError(t, err)
	assert.Empty(t, primary.downloads, "download must use the strategy that located the item")
	require.Len(t, secondary.downloads, 1)
	assert.Equal(t, "cookies/current.txt", secondary.downloads[0].CookiesFile)
}

func TestChainFallsBackWhenPrimaryFindsNothing(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, entries: []models.ContentEntry{{ID: "1", IsLive: true, Timestamp: ts(1)}}}
	secondary := &fakeStrategy{kind: models.StrategySecondary, entries: []models.ContentEntry{{ID: "2", Timestamp: ts(2)}}}
	c := newChain(primary, secondary, fakeCreds{exists: true, valid: true})

	loc, err := c.Locate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "2", loc.EntryID)
}

func TestChainWithoutValidCredentialPropagatesPrimaryError(t *testing.T) {
	primaryErr := stderrors.New("HTTP Error 429: Too Many Requests")
	primary := &fakeStrategy{kind: models.StrategyPrimary, listErr: primaryErr}
	secondary := &fakeStrategy{kind: models.StrategySecondary}
	c := newChain(primary, secondary, fakeCreds{exists: true, valid: false})

	_, err := c.Locate(context.Background(), "alice")
	assert.ErrorIs(t, err, primaryErr)
	assert.Empty(t, secondary.lists)
}

func TestChainPropagatesSecondaryError(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, listErr: stderrors.New("first")}
	secondaryErr := stderrors.New("second")
	secondary := &fakeStrategy{kind: models.StrategySecondary, listErr: secondaryErr}
	c := newChain(primary, secondary, fakeCreds{exists: true, valid: true})

	_, err := c.Locate(context.Background(), "alice")
	assert.ErrorIs(t, err, secondaryErr)
}

func TestChainNoContent(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary}
	c := newChain(primary, &fakeStrategy{kind: models.StrategySecondary}, fakeCreds{})

	_, err := c.Locate(context.Background(), "alice")
	assert.ErrorIs(t, err, errors.ErrNoContent)
}

func TestChainDownloadFailure(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, dlErr: stderrors.New("ERROR: Requested format is not available")}
	c := newChain(primary, &fakeStrategy{kind: models.StrategySecondary}, fakeCreds{})

	_, err := c.Download(context.Background(), Location{URL: "u", Strategy: models.StrategyPrimary}, "id")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeDownloadFailed, errors.TypeOf(err))
}

func TestChainDownloadFailureClassifiedByCause(t *testing.T) {
	primary := &fakeStrategy{kind: models.StrategyPrimary, dlErr: stderrors.New("ERROR: Postprocessing: ffmpeg not found")}
	c := newChain(primary, &fakeStrategy{kind: models.StrategySecondary}, fakeCreds{exists: true, valid: true})

	loc := Location{
		Handle:   "authentic.login",
		EntryID:  "7301429567890123456",
		URL:      "https://www.tiktok.com/@authentic.login/video/7301429567890123456",
		Strategy: models.StrategyPrimary,
	}
	_, err := c.Download(context.Background(), loc, "t_authentic.login_1700000000")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeDownloadFailed, errors.TypeOf(err))
	assert.Equal(t, errors.Unknown, errors.Classify(err))

	missing := missingOutput("downloads/audio/t_private_1.mp3")
	assert.Equal(t, errors.Unknown, errors.Classify(missing))
}

func TestChainDiscard(t *testing.T) {
	dir := t.TempDir()
	c := NewChain(&fakeStrategy{kind: models.StrategyPrimary}, &fakeStrategy{kind: models.StrategySecondary},
		staticResolver{models.StableIDTarget("SEC")},
		locator.New("https://www.tiktok.com", 10),
		fakeCreds{},
		dirArtifacts{dir: dir},
		logger.NewNopLogger())

	path := filepath.Join(dir, "t_alice_1.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
	require.NoError(t, c.Discard("t_alice_1"))
	assert.NoFileExists(t, path)
	assert.Error(t, c.Discard("t_alice_1"))
}
