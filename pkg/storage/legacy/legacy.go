// Package legacy implements the single-file-plus-sidecars storage format:
// one pretty-printed index.json holding every item, with any item whose
// metadata serializes past 1KB hoisted out to its own "<uuid>.json"
// sidecar. It is read entirely into memory on first access and cached
// there; every mutation re-serializes the whole index and replaces it via
// a temp-file-then-rename so a crash mid-write never leaves a torn file.
package legacy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/anvanster/vectrust/pkg/core"
	"github.com/anvanster/vectrust/pkg/vecmath"
)

const sidecarThreshold = 1024

// indexFile is the exact shape persisted at index.json.
type indexFile struct {
	Version        int                `json:"version"`
	MetadataConfig core.MetadataConfig `json:"metadataConfig"`
	Items          []core.Item        `json:"items"`
}

// Store is a core.Backend implementation over the legacy single-file format.
type Store struct {
	mu        sync.RWMutex
	dir       string
	indexName string
	log       core.Logger

	cached *indexFile
}

// New returns a Store rooted at dir, reading/writing dir/indexName.
func New(dir, indexName string, log core.Logger) *Store {
	if log == nil {
		log = core.NopLogger()
	}
	return &Store{dir: dir, indexName: indexName, log: log}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, s.indexName)
}

func (s *Store) metadataPath(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Exists reports whether the primary index file is present.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil {
		return true
	}
	_, err := os.Stat(s.indexPath())
	return err == nil
}

func (s *Store) loadLocked() (*indexFile, error) {
	if s.cached != nil {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewErr("legacy.load", core.KindNotFound, "index not found")
		}
		return nil, core.WrapErr("legacy.load", core.KindIO, err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, core.WrapErr("legacy.load", core.KindSerialization, err)
	}

	s.cached = &idx
	return s.cached, nil
}

// saveLocked atomically replaces the index file and updates the cache.
// Caller must hold the write lock.
func (s *Store) saveLocked(idx *indexFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.WrapErr("legacy.save", core.KindIO, err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return core.WrapErr("legacy.save", core.KindSerialization, err)
	}

	tmpPath := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return core.WrapErr("legacy.save", core.KindIO, err)
	}
	if err := os.Rename(tmpPath, s.indexPath()); err != nil {
		return core.WrapErr("legacy.save", core.KindIO, err)
	}

	s.cached = idx
	return nil
}

func (s *Store) loadMetadata(id uuid.UUID) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(s.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, core.WrapErr("legacy.loadMetadata", core.KindIO, err)
	}
	return json.RawMessage(data), true, nil
}

func (s *Store) saveMetadata(id uuid.UUID, metadata json.RawMessage) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return core.WrapErr("legacy.saveMetadata", core.KindSerialization, err)
	}
	if err := os.WriteFile(s.metadataPath(id), data, 0o644); err != nil {
		return core.WrapErr("legacy.saveMetadata", core.KindIO, err)
	}
	return nil
}

func (s *Store) deleteMetadata(id uuid.UUID) error {
	err := os.Remove(s.metadataPath(id))
	if err != nil && !os.IsNotExist(err) {
		return core.WrapErr("legacy.deleteMetadata", core.KindIO, err)
	}
	return nil
}

// hoistMetadata returns the item as it should be stored in index.json,
// sidecaring metadata larger than sidecarThreshold bytes and writing or
// removing the sidecar file to match.
func (s *Store) hoistMetadata(item core.Item) (core.Item, error) {
	stored := item
	if len(item.Metadata) > sidecarThreshold {
		if err := s.saveMetadata(item.ID, item.Metadata); err != nil {
			return core.Item{}, err
		}
		stored.Metadata = json.RawMessage("{}")
	} else {
		if err := s.deleteMetadata(item.ID); err != nil {
			return core.Item{}, err
		}
	}
	return stored, nil
}

func (s *Store) resolveMetadata(item core.Item) (core.Item, error) {
	external, ok, err := s.loadMetadata(item.ID)
	if err != nil {
		return core.Item{}, err
	}
	if ok {
		item.Metadata = external
	}
	return item, nil
}

// CreateIndex writes a fresh empty index file.
func (s *Store) CreateIndex(cfg core.CreateIndexConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.indexPath()); err == nil && !cfg.DeleteIfExists {
		return core.NewErr("legacy.CreateIndex", core.KindAlreadyExists, "index already exists")
	}

	idx := &indexFile{
		Version:        cfg.Version,
		MetadataConfig: cfg.MetadataConfig,
		Items:          []core.Item{},
	}
	if err := s.saveLocked(idx); err != nil {
		s.log.Error("create index failed", "dir", s.dir, "error", err)
		return err
	}
	s.log.Info("index created", "dir", s.dir)
	return nil
}

// GetItem returns the item for id with its sidecar metadata resolved, or
// nil if it isn't present.
func (s *Store) GetItem(id uuid.UUID) (*core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	for _, it := range idx.Items {
		if it.ID == id {
			resolved, err := s.resolveMetadata(it)
			if err != nil {
				return nil, err
			}
			return &resolved, nil
		}
	}
	return nil, nil
}

// InsertItem appends item, failing if its id is already present.
func (s *Store) InsertItem(item core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return err
	}

	for _, existing := range idx.Items {
		if existing.ID == item.ID {
			s.log.Warn("insert rejected, id already exists", "id", item.ID)
			return core.NewErr("legacy.InsertItem", core.KindAlreadyExists,
				fmt.Sprintf("item with id %s already exists", item.ID))
		}
	}

	stored, err := s.hoistMetadata(item)
	if err != nil {
		return err
	}

	next := *idx
	next.Items = append(append([]core.Item(nil), idx.Items...), stored)
	return s.saveLocked(&next)
}

// InsertItems inserts each item in turn, stopping at the first failure.
func (s *Store) InsertItems(items []core.Item) error {
	for _, it := range items {
		if err := s.InsertItem(it); err != nil {
			return err
		}
	}
	return nil
}

// UpdateItem replaces the stored item sharing item.ID, failing if absent.
func (s *Store) UpdateItem(item core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return err
	}

	position := -1
	for i, existing := range idx.Items {
		if existing.ID == item.ID {
			position = i
			break
		}
	}
	if position < 0 {
		s.log.Warn("update rejected, id not found", "id", item.ID)
		return core.NewErr("legacy.UpdateItem", core.KindNotFound, "item not found")
	}

	stored, err := s.hoistMetadata(item)
	if err != nil {
		return err
	}

	next := *idx
	next.Items = append([]core.Item(nil), idx.Items...)
	next.Items[position] = stored
	return s.saveLocked(&next)
}

// DeleteItem removes the item and its sidecar, failing if absent.
func (s *Store) DeleteItem(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return err
	}

	kept := make([]core.Item, 0, len(idx.Items))
	found := false
	for _, it := range idx.Items {
		if it.ID == id {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		s.log.Warn("delete rejected, id not found", "id", id)
		return core.NewErr("legacy.DeleteItem", core.KindNotFound, "item not found")
	}

	if err := s.deleteMetadata(id); err != nil {
		return err
	}

	next := *idx
	next.Items = kept
	return s.saveLocked(&next)
}

// ListItems returns items in insertion order, metadata resolved, with
// opts.Offset/opts.Limit applied as a plain slice window.
func (s *Store) ListItems(opts *core.ListOptions) ([]core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	items := make([]core.Item, len(idx.Items))
	for i, it := range idx.Items {
		resolved, err := s.resolveMetadata(it)
		if err != nil {
			return nil, err
		}
		items[i] = resolved
	}

	if opts == nil {
		return items, nil
	}

	offset := 0
	if opts.Offset != nil {
		offset = *opts.Offset
	}
	limit := len(items)
	if opts.Limit != nil {
		limit = *opts.Limit
	}

	if offset >= len(items) {
		return []core.Item{}, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], nil
}

// QueryItems runs a brute-force cosine-only scan of every non-deleted item,
// ignoring any configured distance metric: the legacy format predates
// per-index metric selection and always scored by cosine similarity.
func (s *Store) QueryItems(q core.Query) ([]core.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	if q.Vector == nil {
		return []core.QueryResult{}, nil
	}

	results := make([]core.QueryResult, 0, len(idx.Items))
	for _, it := range idx.Items {
		if it.Deleted {
			continue
		}
		if !vecmath.CompatibleDimensions(q.Vector, it.Vector) {
			continue
		}
		score := vecmath.CosineSimilarity(q.Vector, it.Vector)
		resolved, err := s.resolveMetadata(it)
		if err != nil {
			return nil, err
		}
		results = append(results, core.QueryResult{Item: resolved, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	topK := q.TopK
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// BeginTransaction, CommitTransaction, RollbackTransaction are no-ops: the
// legacy format has no transactional mechanism, every write is already its
// own atomic file replace.
func (s *Store) BeginTransaction() error    { return nil }
func (s *Store) CommitTransaction() error   { return nil }
func (s *Store) RollbackTransaction() error { return nil }

// Flush is a no-op; there is nothing buffered beyond the atomic write
// saveLocked already performed.
func (s *Store) Flush() error { return nil }

// DeleteIndex removes the primary file and any UUID-named sidecar files,
// then clears the cache.
func (s *Store) DeleteIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexPath := s.indexPath()
	if err := os.Remove(indexPath); err != nil && !os.IsNotExist(err) {
		return core.WrapErr("legacy.DeleteIndex", core.KindIO, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.cached = nil
			return nil
		}
		return core.WrapErr("legacy.DeleteIndex", core.KindIO, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		stem := name[:len(name)-len(filepath.Ext(name))]
		if _, err := uuid.Parse(stem); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return core.WrapErr("legacy.DeleteIndex", core.KindIO, err)
		}
	}

	s.cached = nil
	s.log.Info("index deleted", "dir", s.dir)
	return nil
}

// GetStats reports item count, raw index file size, and the dimensionality
// inferred from the first stored item (legacy indexes never enforce
// dimension consistency at the storage layer).
func (s *Store) GetStats() (core.IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.indexPath()); err != nil {
		return core.IndexStats{DistanceMetric: core.Cosine}, nil
	}

	idx, err := s.loadLocked()
	if err != nil {
		return core.IndexStats{}, err
	}

	info, err := os.Stat(s.indexPath())
	if err != nil {
		return core.IndexStats{}, core.WrapErr("legacy.GetStats", core.KindIO, err)
	}

	stats := core.IndexStats{
		Items:          len(idx.Items),
		SizeBytes:      info.Size(),
		DistanceMetric: core.Cosine,
	}
	if len(idx.Items) > 0 {
		dim := len(idx.Items[0].Vector)
		stats.Dimensions = &dim
	}
	return stats, nil
}

var _ core.Backend = (*Store)(nil)
