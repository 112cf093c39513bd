package hnsw

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvanster/vectrust/pkg/core"
)

func testConfig() core.HNSWConfig {
	seed := int64(42)
	cfg := core.DefaultHNSWConfig()
	cfg.RandomSeed = &seed
	return cfg
}

func TestIndexInsertAndSearch(t *testing.T) {
	idx := New(testConfig())

	vecs := []struct {
		id  uuid.UUID
		vec []float32
	}{
		{uuid.New(), []float32{1, 0, 0, 0}},
		{uuid.New(), []float32{0, 1, 0, 0}},
		{uuid.New(), []float32{0, 0, 1, 0}},
		{uuid.New(), []float32{0.9, 0.1, 0, 0}},
		{uuid.New(), []float32{0.1, 0.9, 0, 0}},
	}

	for _, v := range vecs {
		idx.Insert(v.id, v.vec)
	}

	assert.Equal(t, 5, idx.Len())

	results := idx.Search([]float32{1, 0, 0, 0}, 3)
	require.Len(t, results, 3)

	assert.Equal(t, vecs[0].id, results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestIndexDelete(t *testing.T) {
	idx := New(testConfig())

	a := uuid.New()
	b := uuid.New()
	idx.Insert(a, []float32{1, 0})
	idx.Insert(b, []float32{0, 1})

	assert.Equal(t, 2, idx.Len())

	idx.Delete(a)
	assert.Equal(t, 1, idx.Len())

	results := idx.Search([]float32{1, 0}, 2)
	for _, r := range results {
		assert.NotEqual(t, a, r.ID)
	}
}

func TestIndexSearchEmpty(t *testing.T) {
	idx := New(testConfig())
	results := idx.Search([]float32{1, 0}, 5)
	assert.Nil(t, results)
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	idx := New(testConfig())

	ids := make([]uuid.UUID, 0, 10)
	for i := 0; i < 10; i++ {
		id := uuid.New()
		ids = append(ids, id)
		idx.Insert(id, []float32{float32(i), float32(i) * 2})
	}
	idx.Delete(ids[0])

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	restored := New(core.DefaultHNSWConfig())
	require.NoError(t, restored.Load(&buf))

	assert.Equal(t, idx.Len(), restored.Len())

	query := []float32{5, 10}
	before := idx.Search(query, 3)
	after := restored.Search(query, 3)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}

	// a loaded graph must still accept inserts without panicking on its rng.
	assert.NotPanics(t, func() {
		restored.Insert(uuid.New(), []float32{1, 1})
	})
}
