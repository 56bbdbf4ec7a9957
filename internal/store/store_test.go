package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tidings/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(Config{
		Dir:         t.TempDir(),
		LockTimeout: time.Second,
		MaxBackups:  3,
		Retention:   30 * 24 * time.Hour,
	}, logx.Nop())
	require.NoError(t, err)
	return st
}

func testBatch(date time.Time) *Batch {
	return &Batch{
		Date:        DateKey(date),
		CollectedAt: date,
		News: []Item{
			{ID: "news_20250115_1", Priority: 1, Content: "first", ScheduledTime: "09:00"},
			{ID: "news_20250115_2", Priority: 2, Content: "second", ScheduledTime: "11:00"},
		},
	}
}

func TestStore_SaveAndGetBatch(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveBatch(date, testBatch(date)))

	got, err := st.GetBatch(date)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", got.Date)
	assert.Equal(t, 2, got.TotalNews)
	assert.Len(t, got.News, 2)
}

func TestStore_GetBatch_Missing(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetBatch(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestStore_GetBatch_Corrupt(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, os.WriteFile(st.BatchPath(date), []byte("{not json"), 0o644))

	_, err := st.GetBatch(date)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestStore_UpdateItem(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(date, testBatch(date)))

	published := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)
	err := st.UpdateItem(date, "news_20250115_1", func(it *Item) error {
		it.Published = true
		it.PublicationAttempts++
		it.PublishedAt = &published
		return nil
	})
	require.NoError(t, err)

	got, err := st.GetBatch(date)
	require.NoError(t, err)
	it := got.Item("news_20250115_1")
	require.NotNil(t, it)
	assert.True(t, it.Published)
	assert.Equal(t, 1, it.PublicationAttempts)
	require.NotNil(t, it.PublishedAt)
	assert.True(t, it.PublishedAt.Equal(published))

	// Sibling untouched.
	assert.False(t, got.Item("news_20250115_2").Published)
	assert.Equal(t, 1, got.Unpublished())
}

func TestStore_UpdateItem_Unknown(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(date, testBatch(date)))

	err := st.UpdateItem(date, "news_20250115_9", func(it *Item) error { return nil })
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestStore_BackupRotation(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	path := st.BatchPath(date)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.SaveBatch(date, testBatch(date)))
	}

	assert.FileExists(t, path+".bak.1")
	assert.FileExists(t, path+".bak.3")
	assert.NoFileExists(t, path+".bak.4")
}

func TestStore_Dates(t *testing.T) {
	st := newTestStore(t)
	d1 := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(d1, testBatch(d1)))
	require.NoError(t, st.SaveBatch(d2, testBatch(d2)))

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "notes.txt"), []byte("x"), 0o644))

	dates, err := st.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, "2025-01-15", DateKey(dates[0]))
	assert.Equal(t, "2025-01-14", DateKey(dates[1]))
}

func TestStore_Sweep(t *testing.T) {
	st := newTestStore(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(old, testBatch(old)))
	require.NoError(t, st.SaveBatch(fresh, testBatch(fresh)))

	removed, err := st.Sweep(time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = st.GetBatch(old)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = st.GetBatch(fresh)
	assert.NoError(t, err)
}

func TestStore_Sweep_RemovesImageDirs(t *testing.T) {
	dir := t.TempDir()
	imgRoot := filepath.Join(dir, "images")
	st, err := New(Config{
		Dir:         dir,
		ImagesDir:   imgRoot,
		LockTimeout: time.Second,
		Retention:   30 * 24 * time.Hour,
	}, logx.Nop())
	require.NoError(t, err)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(old, testBatch(old)))
	require.NoError(t, st.SaveBatch(fresh, testBatch(fresh)))
	for _, d := range []time.Time{old, fresh} {
		day := filepath.Join(imgRoot, DateKey(d))
		require.NoError(t, os.MkdirAll(day, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(day, "news_1.png"), []byte("png"), 0o644))
	}

	removed, err := st.Sweep(time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, filepath.Join(imgRoot, "2025-01-01"))
	assert.DirExists(t, filepath.Join(imgRoot, "2025-01-28"))
}

func TestStore_InterruptedWriteKeepsPriorBatch(t *testing.T) {
	st := newTestStore(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(date, testBatch(date)))

	// A writer killed between writing its temp file and the rename leaves
	// only the stray temp behind; reads must still see the prior batch.
	stray := filepath.Join(st.Dir(), "."+filepath.Base(st.BatchPath(date))+".271828.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`{"date":"2025-01-15","news":[]}`), 0o644))

	got, err := st.GetBatch(date)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", got.Date)
	assert.Len(t, got.News, 2)

	dates, err := st.Dates()
	require.NoError(t, err)
	assert.Len(t, dates, 1)
}

func TestAtomicWrite_ReplacesWhole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, AtomicWrite(path, []byte(`{"v":1}`)))
	require.NoError(t, AtomicWrite(path, []byte(`{"v":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v struct{ V int }
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, 2, v.V)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAcquireLock_Timeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	held, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = AcquireLock(path, 150*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquireLock_ReleaseThenReacquire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	l1, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := AcquireLock(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
