package core

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestItemCloneIsIndependent(t *testing.T) {
	original := Item{
		ID:       uuid.New(),
		Vector:   []float32{1, 2, 3},
		Metadata: json.RawMessage(`{"a":1}`),
	}

	clone := original.Clone()
	clone.Vector[0] = 99
	clone.Metadata = json.RawMessage(`{"a":2}`)

	assert.Equal(t, float32(1), original.Vector[0], "mutating the clone's vector must not affect the original")
	assert.JSONEq(t, `{"a":1}`, string(original.Metadata))
}

func TestDefaultConfigsAreConsistent(t *testing.T) {
	cfg := DefaultCreateIndexConfig()
	assert.Equal(t, Cosine, cfg.DistanceMetric)
	assert.Equal(t, DefaultHNSWConfig().M, cfg.HNSWConfig.M)
	assert.Equal(t, DefaultMetadataConfig().MaxSize, cfg.MetadataConfig.MaxSize)
}
