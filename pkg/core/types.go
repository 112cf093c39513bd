// Package core holds the shared types, configuration, error taxonomy, and
// logging interface used by every store backend and by the index façade.
// Nothing in here touches a filesystem or a lock; it is the vocabulary the
// rest of the module speaks.
package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DistanceMetric selects the similarity function a store or index uses.
type DistanceMetric string

const (
	Cosine     DistanceMetric = "cosine"
	Euclidean  DistanceMetric = "euclidean"
	DotProduct DistanceMetric = "dotProduct"
)

// MetadataConfig configures how the legacy store treats metadata payloads.
type MetadataConfig struct {
	Indexed  []string `json:"indexed"`
	Reserved []string `json:"reserved"`
	MaxSize  int      `json:"maxSize"`
	Dynamic  bool     `json:"dynamic"`
}

// DefaultMetadataConfig returns the spec's documented defaults.
func DefaultMetadataConfig() MetadataConfig {
	return MetadataConfig{
		Indexed:  []string{},
		Reserved: []string{},
		MaxSize:  1048576,
		Dynamic:  true,
	}
}

// HNSWConfig configures the HNSW graph.
type HNSWConfig struct {
	M                   int            `json:"m"`
	EfConstruction      int            `json:"efConstruction"`
	EfSearch            int            `json:"efSearch"`
	RandomSeed          *int64         `json:"randomSeed,omitempty"`
	MaxElements         int            `json:"maxElements"`
	MaxLevels           int            `json:"maxLevels"`
	MaxConnections      int            `json:"maxConnections"`
	MaxConnectionsLevel0 int           `json:"maxConnectionsLayer0"`
	DistanceMetric      DistanceMetric `json:"distanceMetric"`
}

// DefaultHNSWConfig returns the spec's documented defaults.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:                    16,
		EfConstruction:       200,
		EfSearch:             200,
		RandomSeed:           nil,
		MaxElements:          10000,
		MaxLevels:            16,
		MaxConnections:       16,
		MaxConnectionsLevel0: 32,
		DistanceMetric:       Cosine,
	}
}

// CreateIndexConfig is the configuration accepted by CreateIndex.
type CreateIndexConfig struct {
	Version        int            `json:"version"`
	DeleteIfExists bool           `json:"deleteIfExists"`
	DistanceMetric DistanceMetric `json:"distanceMetric"`
	MetadataConfig MetadataConfig `json:"metadataConfig"`
	HNSWConfig     HNSWConfig     `json:"hnswConfig"`
}

// DefaultCreateIndexConfig returns the spec's documented defaults.
func DefaultCreateIndexConfig() CreateIndexConfig {
	return CreateIndexConfig{
		Version:        1,
		DeleteIfExists: false,
		DistanceMetric: Cosine,
		MetadataConfig: DefaultMetadataConfig(),
		HNSWConfig:     DefaultHNSWConfig(),
	}
}

// Item is the unit stored and retrieved by every backend.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	Vector    []float32       `json:"vector"`
	Metadata  json.RawMessage `json:"metadata"`
	Indexed   json.RawMessage `json:"indexed,omitempty"`
	Deleted   bool            `json:"deleted"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Version   int             `json:"version"`
}

// Clone returns a deep-enough copy of item: the vector and metadata slices
// are copied so callers can freely mutate the original afterward.
func (it Item) Clone() Item {
	out := it
	if it.Vector != nil {
		out.Vector = append([]float32(nil), it.Vector...)
	}
	if it.Metadata != nil {
		out.Metadata = append(json.RawMessage(nil), it.Metadata...)
	}
	if it.Indexed != nil {
		out.Indexed = append(json.RawMessage(nil), it.Indexed...)
	}
	return out
}

// UpdateRequest is a partial update: nil fields are left unchanged.
type UpdateRequest struct {
	ID       uuid.UUID
	Vector   []float32
	Metadata json.RawMessage
}

// UpdateResult reports the post-update version.
type UpdateResult struct {
	ID      uuid.UUID
	Version int
}

// ListOptions paginates and (uninterpreted) filters ListItems.
type ListOptions struct {
	Limit  *int
	Offset *int
	Filter json.RawMessage
}

// Query is the internal request shape a backend's QueryItems receives.
type Query struct {
	Vector []float32
	Text   *string
	TopK   int
	Filter json.RawMessage
}

// QueryResult pairs a retrieved item with its similarity score.
type QueryResult struct {
	Item  Item
	Score float32
}

// IndexStats reports index-wide bookkeeping.
type IndexStats struct {
	Items             int             `json:"items"`
	SizeBytes         int64           `json:"sizeBytes"`
	Dimensions        *int            `json:"dimensions,omitempty"`
	DistanceMetric    DistanceMetric  `json:"distanceMetric"`
	NextVectorOffset  *int64          `json:"nextVectorOffset,omitempty"`
	VectorFileSize    *int64          `json:"vectorFileSize,omitempty"`
}

// Manifest is the optimized store's small bookkeeping file.
type Manifest struct {
	Version          int            `json:"version"`
	Format           string         `json:"format"`
	CreatedAt        time.Time      `json:"createdAt"`
	Dimensions       *int           `json:"dimensions"`
	DistanceMetric   DistanceMetric `json:"distanceMetric"`
	TotalItems       int            `json:"totalItems"`
	VectorFileSize   int64          `json:"vectorFileSize"`
	NextVectorOffset int64          `json:"nextVectorOffset"`
}

// VectorRecord points from an id to its slot in the mmapped vector file.
type VectorRecord struct {
	Offset     int64
	Dimensions int
	Deleted    bool
}
