package legacy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvanster/vectrust/pkg/core"
)

func newTestItem(vector []float32) core.Item {
	return core.Item{
		ID:       uuid.New(),
		Vector:   vector,
		Metadata: json.RawMessage(`{"label":"x"}`),
	}
}

func TestCreateIndexAndExists(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)

	assert.False(t, s.Exists())

	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))
	assert.True(t, s.Exists())

	t.Run("fails without DeleteIfExists", func(t *testing.T) {
		err := s.CreateIndex(core.DefaultCreateIndexConfig())
		assert.ErrorIs(t, err, core.ErrAlreadyExists)
	})

	t.Run("succeeds with DeleteIfExists", func(t *testing.T) {
		cfg := core.DefaultCreateIndexConfig()
		cfg.DeleteIfExists = true
		assert.NoError(t, s.CreateIndex(cfg))
	})
}

func TestInsertGetUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	item := newTestItem([]float32{1, 2, 3})
	require.NoError(t, s.InsertItem(item))

	t.Run("duplicate insert fails", func(t *testing.T) {
		err := s.InsertItem(item)
		assert.ErrorIs(t, err, core.ErrAlreadyExists)
	})

	t.Run("get returns the stored item", func(t *testing.T) {
		got, err := s.GetItem(item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, item.Vector, got.Vector)
	})

	t.Run("update replaces vector and metadata", func(t *testing.T) {
		updated := item
		updated.Vector = []float32{4, 5, 6}
		updated.Metadata = json.RawMessage(`{"label":"y"}`)
		require.NoError(t, s.UpdateItem(updated))

		got, err := s.GetItem(item.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{4, 5, 6}, got.Vector)
		assert.JSONEq(t, `{"label":"y"}`, string(got.Metadata))
	})

	t.Run("update on unknown id fails", func(t *testing.T) {
		err := s.UpdateItem(newTestItem([]float32{0}))
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("delete removes the item", func(t *testing.T) {
		require.NoError(t, s.DeleteItem(item.ID))
		got, err := s.GetItem(item.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete on unknown id fails", func(t *testing.T) {
		err := s.DeleteItem(item.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestMetadataSidecaring(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	large := json.RawMessage(`{"blob":"` + strings.Repeat("a", sidecarThreshold+1) + `"}`)
	item := core.Item{ID: uuid.New(), Vector: []float32{1}, Metadata: large}
	require.NoError(t, s.InsertItem(item))

	sidecarPath := filepath.Join(dir, item.ID.String()+".json")
	_, err := os.Stat(sidecarPath)
	assert.NoError(t, err, "expected a sidecar file for oversized metadata")

	got, err := s.GetItem(item.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(large), string(got.Metadata))

	require.NoError(t, s.DeleteItem(item.ID))
	_, err = os.Stat(sidecarPath)
	assert.True(t, os.IsNotExist(err))
}

func TestListItemsPagination(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertItem(newTestItem([]float32{float32(i)})))
	}

	all, err := s.ListItems(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	limit := 2
	offset := 1
	page, err := s.ListItems(&core.ListOptions{Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
}

func TestQueryItemsRanksByCosine(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	near := newTestItem([]float32{1, 0})
	far := newTestItem([]float32{0, 1})
	require.NoError(t, s.InsertItem(near))
	require.NoError(t, s.InsertItem(far))

	results, err := s.QueryItems(core.Query{Vector: []float32{0.9, 0.1}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].Item.ID)
}

func TestDeleteIndexRemovesPrimaryAndSidecars(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	large := json.RawMessage(`{"blob":"` + strings.Repeat("a", sidecarThreshold+1) + `"}`)
	item := core.Item{ID: uuid.New(), Vector: []float32{1}, Metadata: large}
	require.NoError(t, s.InsertItem(item))

	require.NoError(t, s.DeleteIndex())
	assert.False(t, s.Exists())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetStats(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "index.json", nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))
	require.NoError(t, s.InsertItem(newTestItem([]float32{1, 2, 3})))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
	require.NotNil(t, stats.Dimensions)
	assert.Equal(t, 3, *stats.Dimensions)
	assert.Equal(t, core.Cosine, stats.DistanceMetric)
}
