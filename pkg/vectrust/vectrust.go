// Package vectrust is the public façade over the storage layer: it
// assigns ids, stamps timestamps and versions, validates vectors, merges
// partial updates, and keeps an in-memory HNSW graph in sync with whichever
// store backend (legacy or optimized) the format dispatcher picked.
package vectrust

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anvanster/vectrust/pkg/core"
	"github.com/anvanster/vectrust/pkg/hnsw"
	"github.com/anvanster/vectrust/pkg/storage/legacy"
	"github.com/anvanster/vectrust/pkg/storage/optimized"
	"github.com/anvanster/vectrust/pkg/vecmath"
)

const defaultTopK = 10

// Index is the public entry point: one open directory, one backend, one
// in-memory graph.
type Index struct {
	mu sync.RWMutex

	dir       string
	indexName string
	log       core.Logger

	backend core.Backend
	graph   *hnsw.Index
	config  *core.CreateIndexConfig
}

// Open picks a backend for dir by probing its contents: a manifest.json
// selects the optimized format, an existing file named name selects the
// legacy format, and otherwise a fresh legacy backend is prepared (nothing
// is written to disk until CreateIndex runs). Logging defaults to a no-op,
// matching the teacher's own default; use OpenWithLogger to observe it.
func Open(dir, name string) (*Index, error) {
	return OpenWithLogger(dir, name, core.NopLogger())
}

// OpenWithLogger is Open with an explicit logger, so a host application can
// plug in its own structured logger the way the teacher's Config.Logger does.
func OpenWithLogger(dir, name string, log core.Logger) (*Index, error) {
	if name == "" {
		name = "index.json"
	}
	if log == nil {
		log = core.NopLogger()
	}

	ix := &Index{dir: dir, indexName: name, log: log}

	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err == nil {
		ix.backend = optimized.New(dir, log)
	} else if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		ix.backend = legacy.New(dir, name, log)
	} else {
		ix.backend = legacy.New(dir, name, log)
	}

	if ix.backend.Exists() {
		if err := ix.rebuildGraph(); err != nil {
			return nil, err
		}
	}

	return ix, nil
}

// rebuildGraph reloads every live item from the backend into a fresh HNSW
// graph, the documented recovery path on open.
func (ix *Index) rebuildGraph() error {
	cfg := core.DefaultHNSWConfig()
	if ix.config != nil {
		cfg = ix.config.HNSWConfig
	}
	graph := hnsw.New(cfg)

	items, err := ix.backend.ListItems(nil)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Deleted {
			continue
		}
		graph.Insert(it.ID, it.Vector)
	}
	ix.graph = graph
	return nil
}

// CreateIndex creates a new index with cfg, deleting the backend's existing
// index first if cfg.DeleteIfExists is set.
func (ix *Index) CreateIndex(cfg core.CreateIndexConfig) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if cfg.DeleteIfExists && ix.backend.Exists() {
		if err := ix.backend.DeleteIndex(); err != nil {
			return err
		}
	}

	if err := ix.backend.CreateIndex(cfg); err != nil {
		ix.log.Error("create index failed", "dir", ix.dir, "error", err)
		return err
	}

	ix.config = &cfg
	ix.graph = hnsw.New(cfg.HNSWConfig)
	ix.log.Info("index ready", "dir", ix.dir, "metric", cfg.DistanceMetric)
	return nil
}

// IsIndexCreated reports whether the backend has a persisted index.
func (ix *Index) IsIndexCreated() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.backend.Exists()
}

func validateVector(vector []float32) error {
	if len(vector) == 0 {
		return core.NewErr("vectrust", core.KindInvalidVector, "vector must not be empty")
	}
	if !vecmath.IsValid(vector) {
		return core.NewErr("vectrust", core.KindInvalidVector, "vector contains a non-finite component")
	}
	return nil
}

// InsertItem assigns a fresh id if item.ID is the zero UUID, stamps
// created/updated timestamps, inserts into the backend and the graph, and
// returns the stored item.
func (ix *Index) InsertItem(item core.Item) (core.Item, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := validateVector(item.Vector); err != nil {
		return core.Item{}, err
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Metadata == nil {
		item.Metadata = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Version = 1

	if err := ix.backend.InsertItem(item); err != nil {
		return core.Item{}, err
	}

	if ix.graph != nil {
		ix.graph.Insert(item.ID, item.Vector)
	}

	return item, nil
}

// InsertItems normalizes and validates every item, then commits them to the
// backend in a single batched write via backend.InsertItems — the fast path
// spec.md calls out as significantly faster than sequential single-item
// inserts — and only then updates the in-memory graph.
func (ix *Index) InsertItems(items []core.Item) ([]core.Item, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prepared := make([]core.Item, len(items))
	now := time.Now().UTC()
	for i, item := range items {
		if err := validateVector(item.Vector); err != nil {
			return nil, err
		}

		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.Metadata == nil {
			item.Metadata = json.RawMessage("{}")
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		item.Version = 1

		prepared[i] = item
	}

	if err := ix.backend.InsertItems(prepared); err != nil {
		ix.log.Error("batch insert failed", "count", len(prepared), "error", err)
		return nil, err
	}

	if ix.graph != nil {
		for _, item := range prepared {
			ix.graph.Insert(item.ID, item.Vector)
		}
	}

	ix.log.Debug("batch insert completed", "count", len(prepared))
	return prepared, nil
}

// UpsertItem inserts item if its id is absent, or routes it through the
// same version-incrementing path as UpdateItem if present. This diverges
// from the reference implementation's raw-storage-update shortcut, which
// would leave version/updated_at unchanged on upsert-as-update; see
// DESIGN.md.
func (ix *Index) UpsertItem(item core.Item) (core.Item, error) {
	ix.mu.Lock()
	existing, err := ix.backend.GetItem(item.ID)
	ix.mu.Unlock()
	if err != nil {
		return core.Item{}, err
	}

	if existing == nil {
		return ix.InsertItem(item)
	}

	req := core.UpdateRequest{ID: item.ID, Vector: item.Vector, Metadata: item.Metadata}
	if _, err := ix.UpdateItem(req); err != nil {
		return core.Item{}, err
	}

	updated, err := ix.GetItem(item.ID)
	if err != nil {
		return core.Item{}, err
	}
	return *updated, nil
}

func mergeJSON(target json.RawMessage, source json.RawMessage) (json.RawMessage, error) {
	var targetMap map[string]json.RawMessage
	if err := json.Unmarshal(target, &targetMap); err != nil {
		return source, nil
	}
	var sourceMap map[string]json.RawMessage
	if err := json.Unmarshal(source, &sourceMap); err != nil {
		return source, nil
	}
	for k, v := range sourceMap {
		targetMap[k] = v
	}
	return json.Marshal(targetMap)
}

// UpdateItem applies a partial update: a nil Vector or Metadata field in
// req leaves the corresponding stored value unchanged, metadata present in
// req is shallow-merged over the existing object, and version is bumped by
// exactly one.
func (ix *Index) UpdateItem(req core.UpdateRequest) (core.UpdateResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing, err := ix.backend.GetItem(req.ID)
	if err != nil {
		return core.UpdateResult{}, err
	}
	if existing == nil {
		return core.UpdateResult{}, core.NewErr("vectrust.UpdateItem", core.KindNotFound, "item not found")
	}

	item := *existing

	if req.Vector != nil {
		if err := validateVector(req.Vector); err != nil {
			return core.UpdateResult{}, err
		}
		item.Vector = req.Vector
	}

	if req.Metadata != nil {
		merged, err := mergeJSON(item.Metadata, req.Metadata)
		if err != nil {
			return core.UpdateResult{}, core.WrapErr("vectrust.UpdateItem", core.KindInvalidMetadata, err)
		}
		item.Metadata = merged
	}

	item.Version++
	item.UpdatedAt = time.Now().UTC()

	if err := ix.backend.UpdateItem(item); err != nil {
		return core.UpdateResult{}, err
	}

	if ix.graph != nil && req.Vector != nil {
		ix.graph.Delete(item.ID)
		ix.graph.Insert(item.ID, item.Vector)
	}

	return core.UpdateResult{ID: item.ID, Version: item.Version}, nil
}

// GetItem returns item's current state, or nil if absent.
func (ix *Index) GetItem(id uuid.UUID) (*core.Item, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.backend.GetItem(id)
}

// DeleteItem removes id from the backend and tombstones it in the graph.
func (ix *Index) DeleteItem(id uuid.UUID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.backend.DeleteItem(id); err != nil {
		return err
	}
	if ix.graph != nil {
		ix.graph.Delete(id)
	}
	return nil
}

// ListItems forwards to the backend unchanged.
func (ix *Index) ListItems(opts *core.ListOptions) ([]core.Item, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.backend.ListItems(opts)
}

// QueryItems is QueryItemsExtended with no text query.
func (ix *Index) QueryItems(vector []float32, topK *int, filter json.RawMessage) ([]core.QueryResult, error) {
	return ix.QueryItemsExtended(vector, nil, topK, filter)
}

// QueryItemsExtended resolves top_k (default 10), consults the in-memory
// HNSW graph for candidate ids ranked by the graph's own distance metric,
// and re-scores + fetches the backing items from the backend so metadata
// and deletions stay authoritative. text is accepted but unused: hybrid
// text+vector search is out of scope.
func (ix *Index) QueryItemsExtended(vector []float32, text *string, topK *int, filter json.RawMessage) ([]core.QueryResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	k := defaultTopK
	if topK != nil {
		k = *topK
	}

	if ix.graph == nil || ix.graph.Len() == 0 {
		return ix.backend.QueryItems(core.Query{Vector: vector, Text: text, TopK: k, Filter: filter})
	}

	candidates := ix.graph.Search(vector, k)
	results := make([]core.QueryResult, 0, len(candidates))
	metric := core.Cosine
	if ix.config != nil {
		metric = ix.config.DistanceMetric
	}

	for _, c := range candidates {
		item, err := ix.backend.GetItem(c.ID)
		if err != nil {
			return nil, err
		}
		if item == nil || item.Deleted {
			continue
		}
		results = append(results, core.QueryResult{
			Item:  *item,
			Score: vecmath.Similarity(vector, item.Vector, metric),
		})
	}

	return results, nil
}

// BeginUpdate starts a transaction on the backend.
func (ix *Index) BeginUpdate() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.backend.BeginTransaction()
}

// EndUpdate commits the backend's open transaction.
func (ix *Index) EndUpdate() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.backend.CommitTransaction()
}

// CancelUpdate rolls back the backend's open transaction.
func (ix *Index) CancelUpdate() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.backend.RollbackTransaction()
}

// DeleteIndex removes the backend's persisted state and drops the graph.
func (ix *Index) DeleteIndex() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.backend.DeleteIndex(); err != nil {
		return err
	}
	ix.graph = nil
	ix.config = nil
	return nil
}

// GetStats forwards to the backend.
func (ix *Index) GetStats() (core.IndexStats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.backend.GetStats()
}
