package collect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidings/internal/images"
	"tidings/internal/retry"
	"tidings/internal/store"
	logx "tidings/pkg/logx"
)

type stubSource struct {
	raw   string
	err   error
	calls int
}

func (s *stubSource) Fetch(ctx context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.raw, nil
}

type stubGenerator struct {
	data  []byte
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, text string) ([]byte, error) {
	g.calls++
	return g.data, nil
}

const stubDigest = `## Первая
Текст первой.
Source: https://example.com/1
---
## Вторая
Текст второй.
`

func newTestCollector(t *testing.T, src *stubSource, gen *stubGenerator, imagesOn bool) (*Collector, *store.Store) {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir(), LockTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)

	var g images.Generator = images.Disabled()
	if gen != nil {
		g = gen
	}
	c := New(Config{
		Slots:         []string{"09:00", "11:00"},
		MaxItems:      5,
		ImagesEnabled: imagesOn,
		Location:      time.UTC,
	}, st, src, g, images.Dir{Root: t.TempDir()}, retry.New(retry.DefaultPolicy(), nil), logx.Nop())
	return c, st
}

func TestCollect_SavesBatch(t *testing.T) {
	src := &stubSource{raw: stubDigest}
	c, st := newTestCollector(t, src, nil, false)

	target := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Collect(context.Background(), target))

	b, err := st.GetBatch(target)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", b.Date)
	assert.Equal(t, 2, b.TotalNews)
	assert.Equal(t, "news_20250115_1", b.News[0].ID)
	assert.Equal(t, "09:00", b.News[0].ScheduledTime)
	assert.Equal(t, "11:00", b.News[1].ScheduledTime)
}

func TestCollect_Idempotent(t *testing.T) {
	src := &stubSource{raw: stubDigest}
	c, _ := newTestCollector(t, src, nil, false)

	target := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Collect(context.Background(), target))
	require.NoError(t, c.Collect(context.Background(), target))

	assert.Equal(t, 1, src.calls, "existing batch must not be re-fetched")
}

func TestCollect_DefaultsToYesterday(t *testing.T) {
	src := &stubSource{raw: stubDigest}
	c, st := newTestCollector(t, src, nil, false)
	c.SetClock(func() time.Time {
		return time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	})

	require.NoError(t, c.Collect(context.Background(), time.Time{}))

	_, err := st.GetBatch(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestCollect_FetchFailurePropagates(t *testing.T) {
	src := &stubSource{err: retry.Permanent(errors.New("no feeds"))}
	c, st := newTestCollector(t, src, nil, false)

	target := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.Error(t, c.Collect(context.Background(), target))

	_, err := st.GetBatch(target)
	assert.ErrorIs(t, err, store.ErrBatchNotFound)
}

func TestCollect_GeneratesImages(t *testing.T) {
	src := &stubSource{raw: stubDigest}
	gen := &stubGenerator{data: []byte{0x89, 'P', 'N', 'G'}}
	c, st := newTestCollector(t, src, gen, true)

	target := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Collect(context.Background(), target))

	assert.Equal(t, 2, gen.calls)
	b, err := st.GetBatch(target)
	require.NoError(t, err)
	for _, it := range b.News {
		assert.True(t, it.ImageGenerated)
		assert.FileExists(t, it.ImagePath)
	}
}

func TestCollect_ImageDisabledLeavesItemsBare(t *testing.T) {
	src := &stubSource{raw: stubDigest}
	gen := &stubGenerator{data: []byte("png")}
	c, st := newTestCollector(t, src, gen, false)

	target := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Collect(context.Background(), target))

	assert.Zero(t, gen.calls)
	b, err := st.GetBatch(target)
	require.NoError(t, err)
	for _, it := range b.News {
		assert.False(t, it.ImageGenerated)
	}
}
