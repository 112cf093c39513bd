package optimized

import (
	"encoding/json"
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
	s := New(dir, nil)

	assert.False(t, s.Exists())
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))
	assert.True(t, s.Exists())

	t.Run("fails without DeleteIfExists", func(t *testing.T) {
		err := s.CreateIndex(core.DefaultCreateIndexConfig())
		assert.ErrorIs(t, err, core.ErrAlreadyExists)
	})
}

func TestInsertGetUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	item := newTestItem([]float32{1, 2, 3})
	require.NoError(t, s.InsertItem(item))

	t.Run("duplicate insert fails", func(t *testing.T) {
		err := s.InsertItem(item)
		assert.ErrorIs(t, err, core.ErrAlreadyExists)
	})

	t.Run("get returns the stored vector", func(t *testing.T) {
		got, err := s.GetItem(item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, item.Vector, got.Vector)
	})

	t.Run("update tombstones the old vector record and writes a new one", func(t *testing.T) {
		updated := item
		updated.Vector = []float32{4, 5, 6}
		require.NoError(t, s.UpdateItem(updated))

		got, err := s.GetItem(item.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{4, 5, 6}, got.Vector)
	})

	t.Run("update on unknown id fails", func(t *testing.T) {
		err := s.UpdateItem(newTestItem([]float32{4, 5, 6}))
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

func TestDimensionMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	require.NoError(t, s.InsertItem(newTestItem([]float32{1, 2, 3})))

	err := s.InsertItem(newTestItem([]float32{1, 2}))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestInsertItemsBatch(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))

	items := []core.Item{
		newTestItem([]float32{1, 0}),
		newTestItem([]float32{0, 1}),
		newTestItem([]float32{1, 1}),
	}
	require.NoError(t, s.InsertItems(items))

	listed, err := s.ListItems(nil)
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	t.Run("mismatched dimensions in one batch fail before any write", func(t *testing.T) {
		bad := []core.Item{newTestItem([]float32{1, 0}), newTestItem([]float32{1, 0, 0})}
		err := s.InsertItems(bad)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})
}

func TestListItemsPagination(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
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
}

func TestQueryItemsUsesConfiguredMetric(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	cfg := core.DefaultCreateIndexConfig()
	cfg.DistanceMetric = core.Euclidean
	require.NoError(t, s.CreateIndex(cfg))

	near := newTestItem([]float32{1, 0})
	far := newTestItem([]float32{10, 10})
	require.NoError(t, s.InsertItem(near))
	require.NoError(t, s.InsertItem(far))

	results, err := s.QueryItems(core.Query{Vector: []float32{1, 0}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].Item.ID)
}

func TestDeleteIndexRemovesDirectory(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))
	require.NoError(t, s.InsertItem(newTestItem([]float32{1, 2})))

	require.NoError(t, s.DeleteIndex())
	assert.False(t, s.Exists())
}

func TestGetStatsReportsManifestBookkeeping(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	require.NoError(t, s.CreateIndex(core.DefaultCreateIndexConfig()))
	require.NoError(t, s.InsertItem(newTestItem([]float32{1, 2, 3})))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
	require.NotNil(t, stats.Dimensions)
	assert.Equal(t, 3, *stats.Dimensions)
	require.NotNil(t, stats.NextVectorOffset)
	assert.Greater(t, *stats.NextVectorOffset, int64(0))
}

func TestVectorRecordRoundTrip(t *testing.T) {
	r := vectorRecord{Offset: 128, Dimensions: 4, Deleted: true}
	encoded := encodeVectorRecord(r)
	decoded, err := decodeVectorRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}
