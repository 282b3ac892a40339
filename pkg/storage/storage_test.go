package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

func TestArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t_old_1.mp3"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	a, err := NewArtifacts(dir, "mp3")
	require.NoError(t, err)

	assert.Equal(t, 1, a.Count())
	assert.Equal(t, dir, a.Dir())

	assert.Equal(t, filepath.Join(dir, "t_new_2.%(ext)s"), a.OutputTemplate("t_new_2"))
	assert.Equal(t, filepath.Join(dir, "t_new_2.mp3"), a.Path("t_new_2"))

	require.NoError(t, os.WriteFile(a.Path("t_new_2"), []byte("audio"), 0644))
	require.NoError(t, a.Remove("t_new_2"))
	assert.NoFileExists(t, a.Path("t_new_2"))
	assert.NoError(t, a.Remove("t_new_2"))

	require.NoError(t, a.Remove("t_old_1"))
	assert.Equal(t, 0, a.Count())
}

func record(url string) models.AcquisitionRecord {
	return models.AcquisitionRecord{ID: "t_alice_1", Title: "clip", URL: url, AudioPath: "downloads/audio/t_alice_1.mp3"}
}

func testIdempotent(t *testing.T, store RecordStore) {
	ctx := context.Background()
	url := "https://www.tiktok.com/@alice/video/1"

	isNew, err := store.IsNew(ctx, url)
	require.NoError(t, err)
	assert.True(t, isNew)

	inserted, err := store.Insert(ctx, record(url))
	require.NoError(t, err)
	assert.True(t, inserted)

	isNew, err = store.IsNew(ctx, url)
	require.NoError(t, err)
	assert.False(t, isNew)

	inserted, err = store.Insert(ctx, record(url))
	require.NoError(t, err)
	assert.False(t, inserted, "second insert of the same url must be a no-op")
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	testIdempotent(t, m)
	assert.Len(t, m.Records(), 1)
}

func TestBadgerStore(t *testing.T) {
	b, err := NewBadgerStore(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	defer b.Close()

	testIdempotent(t, b)

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// fakeDB emulates the url uniqueness of the record table
type fakeDB struct {
	urls    map[string]bool
	queries []string
}

type fakeRow struct {
	value bool
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.value
	return nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	if !strings.HasPrefix(sql, "INSERT") {
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}
	url := args[2].(string)
	if f.urls[url] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	f.urls[url] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	return fakeRow{value: f.urls[args[0].(string)]}
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func TestPostgresStore(t *testing.T) {
	db := &fakeDB{urls: map[string]bool{}}
	s := NewPostgresStoreWith(db, "", logger.NewNopLogger())

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Contains(t, db.queries[0], `CREATE TABLE IF NOT EXISTS "yt_post"`)
	assert.Contains(t, db.queries[0], "video_id text PRIMARY KEY")

	testIdempotent(t, s)

	var insert string
	for _, q := range db.queries {
		if strings.HasPrefix(q, "INSERT") {
			insert = q
		}
	}
	assert.Contains(t, insert, "ON CONFLICT (url) DO NOTHING")
	// existing yt_post tables name the record id column video_id
	assert.Contains(t, insert, "(video_id, title, url, audio_path)")
	assert.NoError(t, s.Close())
}
