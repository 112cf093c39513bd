// Package optimized implements the keyed-store-plus-mmap storage format:
// item metadata and vector-index records live in a Badger key-value store
// under two key prefixes, vector payloads live in an append-only
// memory-mapped vectors.dat file, and a small manifest.json tracks
// bookkeeping (item count, dimensionality, next free offset) with writes
// batched to avoid an fsync on every mutation.
package optimized

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/mmap-go"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anvanster/vectrust/pkg/core"
	"github.com/anvanster/vectrust/pkg/vecmath"
)

const (
	prefixMetadata    = byte(0x01)
	prefixVectorIndex = byte(0x02)

	vectorHeaderSize = 8 // u64 dimension count

	manifestSaveInterval = 100

	initialVectorFileSize = 1 << 20 // 1MB
)

func metadataKey(id uuid.UUID) []byte {
	key := make([]byte, 0, 17)
	key = append(key, prefixMetadata)
	idBytes := id[:]
	return append(key, idBytes...)
}

func vectorIndexKey(id uuid.UUID) []byte {
	key := make([]byte, 0, 17)
	key = append(key, prefixVectorIndex)
	idBytes := id[:]
	return append(key, idBytes...)
}

// vectorRecord is the gob-encoded payload stored under the vector-index
// prefix, pointing at a slot in vectors.dat.
type vectorRecord struct {
	Offset     int64
	Dimensions int
	Deleted    bool
}

// vectorRecord is gob-encoded rather than hand-rolled binary: it is a
// small, rarely-hot-path value, and gob is the encoding this codebase
// already reaches for to persist structured records (see pkg/hnsw's
// Save/Load). The hand-rolled layout in §4.3 applies only to the vector
// bytes themselves, written directly into vectors.dat.
func encodeVectorRecord(r vectorRecord) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeVectorRecord(buf []byte) (vectorRecord, error) {
	var r vectorRecord
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&r); err != nil {
		return vectorRecord{}, fmt.Errorf("decode vector record: %w", err)
	}
	return r, nil
}

// Store is a core.Backend implementation over the keyed-store-plus-mmap
// optimized format.
type Store struct {
	dir string
	log core.Logger

	dimMu sync.RWMutex
	dims  *int

	db *badger.DB

	vecMu     sync.RWMutex
	vecFile   *os.File
	vecMmap   mmap.MMap

	manifestMu    sync.Mutex
	manifest      *core.Manifest
	manifestDirty bool
	opsSinceSave  int
}

// New returns a Store rooted at dir. The Badger db and memory map are
// opened lazily, the first time an operation needs them.
func New(dir string, log core.Logger) *Store {
	if log == nil {
		log = core.NopLogger()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) manifestPath() string { return filepath.Join(s.dir, "manifest.json") }
func (s *Store) vectorPath() string   { return filepath.Join(s.dir, "vectors.dat") }
func (s *Store) dbPath() string       { return filepath.Join(s.dir, "metadata") }

// Exists reports whether a manifest has been written for this directory.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.manifestPath())
	return err == nil
}

func (s *Store) loadManifestFromDisk() (*core.Manifest, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.WrapErr("optimized.loadManifest", core.KindIO, err)
	}
	var m core.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.WrapErr("optimized.loadManifest", core.KindSerialization, err)
	}
	return &m, nil
}

func (s *Store) saveManifestToDisk(m *core.Manifest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.WrapErr("optimized.saveManifest", core.KindIO, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return core.WrapErr("optimized.saveManifest", core.KindSerialization, err)
	}
	if err := os.WriteFile(s.manifestPath(), data, 0o644); err != nil {
		return core.WrapErr("optimized.saveManifest", core.KindIO, err)
	}
	return nil
}

// markDirty records that the in-memory manifest changed and flushes to
// disk once manifestSaveInterval operations have accumulated since the
// last flush.
func (s *Store) markDirty() error {
	s.manifestMu.Lock()
	s.manifestDirty = true
	s.opsSinceSave++
	shouldFlush := s.opsSinceSave >= manifestSaveInterval
	m := s.manifest
	s.manifestMu.Unlock()

	if shouldFlush && m != nil {
		return s.flushManifestIfDirty()
	}
	return nil
}

func (s *Store) flushManifestIfDirty() error {
	s.manifestMu.Lock()
	if !s.manifestDirty || s.manifest == nil {
		s.manifestMu.Unlock()
		return nil
	}
	m := *s.manifest
	s.manifestMu.Unlock()

	if err := s.saveManifestToDisk(&m); err != nil {
		return err
	}

	s.manifestMu.Lock()
	s.manifestDirty = false
	s.opsSinceSave = 0
	s.manifestMu.Unlock()
	return nil
}

// ensureOpen lazily opens the Badger db and the vector mmap the first time
// an operation touches them, so a fresh Store value can be probed with
// Exists() without creating files.
func (s *Store) ensureOpen() error {
	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.WrapErr("optimized.open", core.KindIO, err)
	}

	opts := badger.DefaultOptions(s.dbPath()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return core.WrapErr("optimized.open", core.KindStorage, err)
	}
	s.db = db

	m, err := s.loadManifestFromDisk()
	if err != nil {
		return err
	}
	if m != nil {
		s.manifestMu.Lock()
		s.manifest = m
		s.manifestMu.Unlock()
		s.dimMu.Lock()
		s.dims = m.Dimensions
		s.dimMu.Unlock()

		if _, statErr := os.Stat(s.vectorPath()); statErr == nil {
			if err := s.openVectorFile(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Store) openVectorFile() error {
	f, err := os.OpenFile(s.vectorPath(), os.O_RDWR, 0o644)
	if err != nil {
		return core.WrapErr("optimized.openVectorFile", core.KindIO, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return core.WrapErr("optimized.openVectorFile", core.KindIO, err)
	}
	s.vecMu.Lock()
	s.vecFile = f
	s.vecMmap = m
	s.vecMu.Unlock()
	return nil
}

func (s *Store) createVectorFile(size int64) error {
	f, err := os.OpenFile(s.vectorPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return core.WrapErr("optimized.createVectorFile", core.KindIO, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return core.WrapErr("optimized.createVectorFile", core.KindIO, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return core.WrapErr("optimized.createVectorFile", core.KindIO, err)
	}
	s.vecMu.Lock()
	s.vecFile = f
	s.vecMmap = m
	s.vecMu.Unlock()
	return nil
}

// growVectorFileLocked doubles the backing file until it is at least need
// bytes long, then remaps it. Caller must hold vecMu.
func (s *Store) growVectorFileLocked(need int64) error {
	if int64(len(s.vecMmap)) >= need {
		return nil
	}
	newSize := int64(len(s.vecMmap))
	if newSize == 0 {
		newSize = initialVectorFileSize
	}
	for newSize < need {
		newSize *= 2
	}

	if err := s.vecMmap.Unmap(); err != nil {
		return core.WrapErr("optimized.grow", core.KindIO, err)
	}
	if err := s.vecFile.Truncate(newSize); err != nil {
		return core.WrapErr("optimized.grow", core.KindIO, err)
	}
	m, err := mmap.Map(s.vecFile, mmap.RDWR, 0)
	if err != nil {
		return core.WrapErr("optimized.grow", core.KindIO, err)
	}
	s.vecMmap = m
	return nil
}

func (s *Store) writeVector(offset int64, vector []float32) error {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()

	need := offset + int64(vectorHeaderSize) + int64(len(vector))*4
	if err := s.growVectorFileLocked(need); err != nil {
		return err
	}

	start := offset
	binary.LittleEndian.PutUint64(s.vecMmap[start:start+8], uint64(len(vector)))
	pos := start + vectorHeaderSize
	for _, v := range vector {
		binary.LittleEndian.PutUint32(s.vecMmap[pos:pos+4], math.Float32bits(v))
		pos += 4
	}
	return nil
}

func (s *Store) readVector(offset int64, expectedDims int) ([]float32, error) {
	s.vecMu.RLock()
	defer s.vecMu.RUnlock()

	if s.vecMmap == nil {
		return nil, core.NewErr("optimized.readVector", core.KindStorage, "vector file not initialized")
	}

	dims := int(binary.LittleEndian.Uint64(s.vecMmap[offset : offset+8]))
	if dims != expectedDims {
		return nil, core.NewErr("optimized.readVector", core.KindDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, record has %d", expectedDims, dims))
	}

	out := make([]float32, dims)
	pos := offset + vectorHeaderSize
	for i := 0; i < dims; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.vecMmap[pos : pos+4]))
		pos += 4
	}
	return out, nil
}

// reserveOffset is the sole place a vector's slot in vectors.dat is
// decided: it advances next_vector_offset under the manifest lock and
// returns the old value, so concurrent inserts never collide on a slot
// even though the actual mmap write happens afterward, outside the manifest
// lock.
func (s *Store) reserveOffset(dims int) (int64, error) {
	s.manifestMu.Lock()
	if s.manifest == nil {
		s.manifestMu.Unlock()
		return 0, core.NewErr("optimized.reserveOffset", core.KindStorage, "manifest not initialized")
	}
	offset := s.manifest.NextVectorOffset
	recordSize := int64(vectorHeaderSize + dims*4)
	s.manifest.NextVectorOffset += recordSize
	s.manifest.VectorFileSize = s.manifest.NextVectorOffset
	s.manifestMu.Unlock()

	if err := s.markDirty(); err != nil {
		return 0, err
	}
	return offset, nil
}

func (s *Store) setDimensions(dims int) (bool, error) {
	s.dimMu.Lock()
	if s.dims != nil {
		existing := *s.dims
		s.dimMu.Unlock()
		if existing != dims {
			s.log.Warn("dimension mismatch", "expected", existing, "got", dims)
			return false, core.NewErr("optimized.setDimensions", core.KindDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", existing, dims))
		}
		return false, nil
	}
	s.dims = &dims
	s.dimMu.Unlock()

	s.manifestMu.Lock()
	if s.manifest != nil {
		s.manifest.Dimensions = &dims
		m := *s.manifest
		s.manifestMu.Unlock()
		if err := s.saveManifestToDisk(&m); err != nil {
			return false, err
		}
	} else {
		s.manifestMu.Unlock()
	}
	return true, nil
}

// CreateIndex writes a fresh manifest and allocates the initial vector
// file, removing any existing directory contents first when requested.
func (s *Store) CreateIndex(cfg core.CreateIndexConfig) error {
	if s.Exists() && !cfg.DeleteIfExists {
		return core.NewErr("optimized.CreateIndex", core.KindAlreadyExists, "index already exists")
	}

	if cfg.DeleteIfExists {
		if err := s.DeleteIndex(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.WrapErr("optimized.CreateIndex", core.KindIO, err)
	}

	m := &core.Manifest{
		Version:        2,
		Format:         "optimized",
		DistanceMetric: cfg.DistanceMetric,
	}

	if err := s.saveManifestToDisk(m); err != nil {
		s.log.Error("create index failed", "dir", s.dir, "error", err)
		return err
	}

	s.manifestMu.Lock()
	s.manifest = m
	s.manifestDirty = false
	s.opsSinceSave = 0
	s.manifestMu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	if err := s.createVectorFile(initialVectorFileSize); err != nil {
		return err
	}
	s.log.Info("index created", "dir", s.dir, "metric", cfg.DistanceMetric)
	return nil
}

// GetItem returns the item for id, or nil if absent or tombstoned.
func (s *Store) GetItem(id uuid.UUID) (*core.Item, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var item core.Item
	var rec vectorRecord
	var found bool

	err := s.db.View(func(txn *badger.Txn) error {
		metaItem, err := txn.Get(metadataKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		}); err != nil {
			return err
		}

		recItem, err := txn.Get(vectorIndexKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return recItem.Value(func(val []byte) error {
			var decodeErr error
			rec, decodeErr = decodeVectorRecord(val)
			if decodeErr != nil {
				return decodeErr
			}
			if !rec.Deleted {
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, core.WrapErr("optimized.GetItem", core.KindStorage, err)
	}
	if !found {
		return nil, nil
	}

	vec, err := s.readVector(rec.Offset, rec.Dimensions)
	if err != nil {
		return nil, err
	}
	item.Vector = vec
	return &item, nil
}

// insertRecord performs the common write path shared by InsertItem and,
// after a tombstone, UpdateItem: reserve an offset, write the vector, store
// metadata and the vector-index record.
func (s *Store) insertRecord(item core.Item) error {
	dims := len(item.Vector)

	if _, err := s.setDimensions(dims); err != nil {
		return err
	}

	offset, err := s.reserveOffset(dims)
	if err != nil {
		return err
	}

	if err := s.writeVector(offset, item.Vector); err != nil {
		return err
	}

	withoutVector := item
	withoutVector.Vector = nil
	metaBytes, err := json.Marshal(withoutVector)
	if err != nil {
		return core.WrapErr("optimized.insertRecord", core.KindSerialization, err)
	}

	recBytes := encodeVectorRecord(vectorRecord{Offset: offset, Dimensions: dims, Deleted: false})

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metadataKey(item.ID), metaBytes); err != nil {
			return err
		}
		return txn.Set(vectorIndexKey(item.ID), recBytes)
	})
	if err != nil {
		return core.WrapErr("optimized.insertRecord", core.KindStorage, err)
	}

	s.manifestMu.Lock()
	if s.manifest != nil {
		s.manifest.TotalItems++
	}
	s.manifestMu.Unlock()

	return s.markDirty()
}

// InsertItem stores item, failing if its id is already present and live.
func (s *Store) InsertItem(item core.Item) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	existing, err := s.GetItem(item.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.log.Warn("insert rejected, id already exists", "id", item.ID)
		return core.NewErr("optimized.InsertItem", core.KindAlreadyExists,
			fmt.Sprintf("item with id %s already exists", item.ID))
	}

	return s.insertRecord(item)
}

// InsertItems bulk-inserts items, validating they share one dimensionality
// and committing metadata and vector-index records via a single Badger
// write batch.
func (s *Store) InsertItems(items []core.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	first := len(items[0].Vector)
	for _, it := range items {
		if len(it.Vector) != first {
			s.log.Warn("batch insert rejected, mixed dimensionality", "expected", first, "got", len(it.Vector))
			return core.NewErr("optimized.InsertItems", core.KindDimensionMismatch,
				"all vectors in a batch must share one dimensionality")
		}
	}
	if _, err := s.setDimensions(first); err != nil {
		return err
	}

	type prepared struct {
		id       uuid.UUID
		metaJSON []byte
		recBytes []byte
	}
	batch := make([]prepared, 0, len(items))

	for _, it := range items {
		offset, err := s.reserveOffset(first)
		if err != nil {
			return err
		}
		if err := s.writeVector(offset, it.Vector); err != nil {
			return err
		}

		withoutVector := it
		withoutVector.Vector = nil
		metaBytes, err := json.Marshal(withoutVector)
		if err != nil {
			return core.WrapErr("optimized.InsertItems", core.KindSerialization, err)
		}

		recBytes := encodeVectorRecord(vectorRecord{Offset: offset, Dimensions: first, Deleted: false})
		batch = append(batch, prepared{id: it.ID, metaJSON: metaBytes, recBytes: recBytes})
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, p := range batch {
		if err := wb.Set(metadataKey(p.id), p.metaJSON); err != nil {
			return core.WrapErr("optimized.InsertItems", core.KindStorage, err)
		}
		if err := wb.Set(vectorIndexKey(p.id), p.recBytes); err != nil {
			return core.WrapErr("optimized.InsertItems", core.KindStorage, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return core.WrapErr("optimized.InsertItems", core.KindStorage, err)
	}

	s.manifestMu.Lock()
	if s.manifest != nil {
		s.manifest.TotalItems += len(batch)
	}
	s.manifestMu.Unlock()

	s.log.Debug("batch inserted", "count", len(batch))
	return s.markDirty()
}

// UpdateItem replaces item's vector and metadata: the prior vector-index
// record is tombstoned (vectors.dat is append-only, so the old slot isn't
// reclaimed) and a new record is written at a freshly reserved offset.
func (s *Store) UpdateItem(item core.Item) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	existing, err := s.GetItem(item.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		s.log.Warn("update rejected, id not found", "id", item.ID)
		return core.NewErr("optimized.UpdateItem", core.KindNotFound, "item not found")
	}

	if err := s.tombstoneVectorRecord(item.ID); err != nil {
		return err
	}

	s.manifestMu.Lock()
	if s.manifest != nil && s.manifest.TotalItems > 0 {
		s.manifest.TotalItems--
	}
	s.manifestMu.Unlock()

	return s.insertRecord(item)
}

func (s *Store) tombstoneVectorRecord(id uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		recItem, err := txn.Get(vectorIndexKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var rec vectorRecord
		if err := recItem.Value(func(val []byte) error {
			var decodeErr error
			rec, decodeErr = decodeVectorRecord(val)
			return decodeErr
		}); err != nil {
			return err
		}
		rec.Deleted = true
		return txn.Set(vectorIndexKey(id), encodeVectorRecord(rec))
	})
}

// DeleteItem tombstones id's vector record and drops its metadata entry,
// failing if it was already absent.
func (s *Store) DeleteItem(id uuid.UUID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	existing, err := s.GetItem(id)
	if err != nil {
		return err
	}
	if existing == nil {
		s.log.Warn("delete rejected, id not found", "id", id)
		return core.NewErr("optimized.DeleteItem", core.KindNotFound, "item not found")
	}

	if err := s.tombstoneVectorRecord(id); err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metadataKey(id))
	})
	if err != nil {
		return core.WrapErr("optimized.DeleteItem", core.KindStorage, err)
	}

	s.manifestMu.Lock()
	if s.manifest != nil && s.manifest.TotalItems > 0 {
		s.manifest.TotalItems--
	}
	s.manifestMu.Unlock()

	return s.markDirty()
}

// ListItems iterates every live metadata record in key order and resolves
// its vector, applying opts as a post-hoc slice window.
func (s *Store) ListItems(opts *core.ListOptions) ([]core.Item, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	type pending struct {
		item core.Item
		rec  vectorRecord
	}
	var rows []pending

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixMetadata}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			var id uuid.UUID
			copy(id[:], key[1:])

			recItem, err := txn.Get(vectorIndexKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var rec vectorRecord
			if err := recItem.Value(func(val []byte) error {
				var decodeErr error
				rec, decodeErr = decodeVectorRecord(val)
				return decodeErr
			}); err != nil {
				return err
			}
			if rec.Deleted {
				continue
			}

			var item core.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			rows = append(rows, pending{item: item, rec: rec})
		}
		return nil
	})
	if err != nil {
		return nil, core.WrapErr("optimized.ListItems", core.KindStorage, err)
	}

	items := make([]core.Item, len(rows))
	for i, r := range rows {
		vec, err := s.readVector(r.rec.Offset, r.rec.Dimensions)
		if err != nil {
			return nil, err
		}
		r.item.Vector = vec
		items[i] = r.item
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

// QueryItems runs a brute-force scan over every live item using the
// index's configured distance metric; the optimized format does not yet
// consult an ANN index for query routing.
func (s *Store) QueryItems(q core.Query) ([]core.QueryResult, error) {
	if q.Vector == nil {
		return []core.QueryResult{}, nil
	}

	items, err := s.ListItems(nil)
	if err != nil {
		return nil, err
	}

	s.manifestMu.Lock()
	metric := core.Cosine
	if s.manifest != nil {
		metric = s.manifest.DistanceMetric
	}
	s.manifestMu.Unlock()

	results := make([]core.QueryResult, 0, len(items))
	for _, it := range items {
		if !vecmath.CompatibleDimensions(q.Vector, it.Vector) {
			continue
		}
		score := vecmath.Similarity(q.Vector, it.Vector, metric)
		results = append(results, core.QueryResult{Item: it, Score: score})
	}

	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	topK := q.TopK
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// BeginTransaction is a no-op; Badger transactions are scoped per call in
// this design rather than held open across the facade's own transaction
// triplet.
func (s *Store) BeginTransaction() error { return nil }

// CommitTransaction flushes the manifest and the memory-mapped vector
// file, matching the reference commit point.
func (s *Store) CommitTransaction() error {
	if err := s.flushManifestIfDirty(); err != nil {
		return err
	}
	return s.Flush()
}

// RollbackTransaction is a no-op: nothing is buffered outside of already
// committed Badger writes and the dirty manifest, which CommitTransaction
// alone flushes.
func (s *Store) RollbackTransaction() error { return nil }

// Flush syncs the memory-mapped vector file and the Badger value log
// concurrently, since the two backing stores share no lock between them.
func (s *Store) Flush() error {
	if err := s.flushManifestIfDirty(); err != nil {
		return err
	}

	s.vecMu.RLock()
	m := s.vecMmap
	s.vecMu.RUnlock()

	var g errgroup.Group

	if m != nil {
		g.Go(func() error {
			if err := m.Flush(); err != nil {
				return core.WrapErr("optimized.Flush", core.KindIO, err)
			}
			return nil
		})
	}

	if s.db != nil {
		g.Go(func() error {
			if err := s.db.Sync(); err != nil {
				return core.WrapErr("optimized.Flush", core.KindStorage, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("flush failed", "dir", s.dir, "error", err)
		return err
	}
	return nil
}

// DeleteIndex closes the db and mmap, then removes the whole directory.
func (s *Store) DeleteIndex() error {
	s.vecMu.Lock()
	if s.vecMmap != nil {
		s.vecMmap.Unmap()
		s.vecMmap = nil
	}
	if s.vecFile != nil {
		s.vecFile.Close()
		s.vecFile = nil
	}
	s.vecMu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	s.manifestMu.Lock()
	s.manifest = nil
	s.manifestDirty = false
	s.opsSinceSave = 0
	s.manifestMu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return core.WrapErr("optimized.DeleteIndex", core.KindIO, err)
	}
	s.log.Info("index deleted", "dir", s.dir)
	return nil
}

// GetStats reports manifest bookkeeping plus the on-disk directory size.
// Between flushes the in-memory manifest is the authoritative copy, since
// markDirty only touches disk every manifestSaveInterval operations; GetStats
// reads it under manifestMu rather than re-reading the (possibly stale) file,
// falling back to disk only before the store has ever loaded a manifest.
func (s *Store) GetStats() (core.IndexStats, error) {
	s.manifestMu.Lock()
	m := s.manifest
	if m != nil {
		copied := *m
		m = &copied
	}
	s.manifestMu.Unlock()

	if m == nil {
		var err error
		m, err = s.loadManifestFromDisk()
		if err != nil {
			return core.IndexStats{}, err
		}
	}
	if m == nil {
		return core.IndexStats{DistanceMetric: core.Cosine}, nil
	}

	var size int64
	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			if info, err := e.Info(); err == nil {
				size += info.Size()
			}
		}
	}

	nextOffset := m.NextVectorOffset
	fileSize := m.VectorFileSize
	return core.IndexStats{
		Items:            m.TotalItems,
		SizeBytes:        size,
		Dimensions:       m.Dimensions,
		DistanceMetric:   m.DistanceMetric,
		NextVectorOffset: &nextOffset,
		VectorFileSize:   &fileSize,
	}, nil
}

var _ core.Backend = (*Store)(nil)
