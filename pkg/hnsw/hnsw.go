// Package hnsw implements a Hierarchical Navigable Small World graph over
// vectors keyed by uuid.UUID: insertion with the standard greedy-descent +
// beam-search + neighbour-diversity-pruning algorithm, and top-k search.
//
// The graph lives entirely in memory; callers own persistence (the
// vectrust façade rebuilds it from the store backend on open, or
// Save/Load can checkpoint it directly via encoding/gob).
package hnsw

import (
	"container/heap"
	"encoding/gob"
	"io"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/anvanster/vectrust/pkg/core"
	"github.com/anvanster/vectrust/pkg/vecmath"
)

// node is one vertex of the graph: its vector and its outgoing neighbour
// sets at each level it participates in.
type node struct {
	ID          uuid.UUID
	Vector      []float32
	Level       int
	Connections [][]uuid.UUID // Connections[level] = neighbour ids at that level
}

// Index is an in-memory multi-layer proximity graph.
type Index struct {
	mu sync.RWMutex

	config core.HNSWConfig
	nodes  map[uuid.UUID]*node

	entryPoint uuid.UUID
	hasEntry   bool
	maxLevel   int

	deleted map[uuid.UUID]bool

	rng *rand.Rand
}

// New builds an empty index from cfg.
func New(cfg core.HNSWConfig) *Index {
	var seed int64 = 1
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	return &Index{
		config:  cfg,
		nodes:   make(map[uuid.UUID]*node),
		deleted: make(map[uuid.UUID]bool),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Delete tombstones id: it stays in the graph as a waypoint (removing it
// would require re-linking every neighbour) but is never returned by
// Search and never counted by Len.
func (h *Index) Delete(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted[id] = true
}

// Len returns the number of live (non-tombstoned) nodes in the graph.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes) - len(h.deleted)
}

// randomLevel draws a node level via repeated fair coin flips, the
// geometric-distribution form this design standardizes on (not the
// -ln(U)*mL form) because its degree distribution is what the pruning
// heuristic in selectNeighbors is calibrated against.
func (h *Index) randomLevel() int {
	level := 0
	for level < h.config.MaxLevels-1 && h.rng.Float64() < 0.5 {
		level++
	}
	return level
}

// distance computes the configured metric's "smaller is better" distance.
func (h *Index) distance(a, b []float32) float32 {
	switch h.config.DistanceMetric {
	case core.Euclidean:
		return vecmath.EuclideanDistance(a, b)
	case core.DotProduct:
		return -vecmath.DotProduct(a, b)
	default:
		return 1 - vecmath.CosineSimilarity(a, b)
	}
}

// candidate is one entry in the beam-search heaps.
type candidate struct {
	id       uuid.UUID
	distance float32
}

// minHeap pops the nearest candidate first.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest candidate first; used as the bounded result set
// so the worst entry is the one evicted when it overflows.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs a bounded beam search at one level, starting from
// entryPoints, and returns the numClosest best candidates sorted ascending
// by distance. Caller must hold at least a read lock.
func (h *Index) searchLayer(query []float32, entryPoints []uuid.UUID, numClosest, level int) []candidate {
	visited := make(map[uuid.UUID]bool)
	var candidates minHeap
	var results maxHeap

	for _, ep := range entryPoints {
		n, ok := h.nodes[ep]
		if !ok || visited[ep] {
			continue
		}
		visited[ep] = true
		d := h.distance(query, n.Vector)
		c := candidate{id: ep, distance: d}
		heap.Push(&candidates, c)
		heap.Push(&results, c)
	}

	for candidates.Len() > 0 {
		current := heap.Pop(&candidates).(candidate)

		if results.Len() >= numClosest && current.distance > results[0].distance {
			break
		}

		n, ok := h.nodes[current.id]
		if !ok || level >= len(n.Connections) {
			continue
		}

		for _, neighborID := range n.Connections[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor, ok := h.nodes[neighborID]
			if !ok {
				continue
			}
			d := h.distance(query, neighbor.Vector)

			if results.Len() < numClosest {
				c := candidate{id: neighborID, distance: d}
				heap.Push(&candidates, c)
				heap.Push(&results, c)
			} else if d < results[0].distance {
				c := candidate{id: neighborID, distance: d}
				heap.Push(&candidates, c)
				heap.Push(&results, c)
				heap.Pop(&results)
			}
		}
	}

	out := make([]candidate, len(results))
	copy(out, results)
	sortCandidates(out)
	if len(out) > numClosest {
		out = out[:numClosest]
	}
	return out
}

func sortCandidates(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].distance < c[j-1].distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// selectNeighbors applies the diversity heuristic: always keep the nearest,
// then repeatedly pick whichever remaining candidate's minimum distance to
// the already-selected set exceeds its distance to the query by the largest
// margin, preferring neighbours that cover new directions. Ties keep scan
// order (stable linear scan, first max wins).
func (h *Index) selectNeighbors(candidates []candidate, m int) []uuid.UUID {
	if len(candidates) <= m {
		out := make([]uuid.UUID, len(candidates))
		for i, c := range candidates {
			out[i] = c.id
		}
		return out
	}

	remaining := append([]candidate(nil), candidates...)
	selected := make([]uuid.UUID, 0, m)

	selected = append(selected, remaining[0].id)
	remaining = remaining[1:]

	for len(selected) < m && len(remaining) > 0 {
		bestIdx := 0
		bestScore := float32(0)
		first := true

		for i, c := range remaining {
			candNode, ok := h.nodes[c.id]
			if !ok {
				continue
			}
			minDist := float32(0)
			minSet := false
			for _, sel := range selected {
				selNode, ok := h.nodes[sel]
				if !ok {
					continue
				}
				d := h.distance(candNode.Vector, selNode.Vector)
				if !minSet || d < minDist {
					minDist = d
					minSet = true
				}
			}
			score := minDist - c.distance
			if first || score > bestScore {
				bestScore = score
				bestIdx = i
				first = false
			}
		}

		selected = append(selected, remaining[bestIdx].id)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// Insert adds (id, vector) to the graph. Re-inserting a tombstoned id makes
// it live again.
func (h *Index) Insert(id uuid.UUID, vector []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.deleted, id)

	level := h.randomLevel()
	n := &node{
		ID:          id,
		Vector:      append([]float32(nil), vector...),
		Level:       level,
		Connections: make([][]uuid.UUID, level+1),
	}

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		h.nodes[id] = n
		return
	}

	currentClosest := []uuid.UUID{h.entryPoint}

	for lc := h.maxLevel; lc > level; lc-- {
		best := h.searchLayer(vector, currentClosest, 1, lc)
		currentClosest = idsOf(best)
	}

	for lc := min(level, h.maxLevel); lc >= 0; lc-- {
		candidates := h.searchLayer(vector, currentClosest, h.config.EfConstruction, lc)

		capAt := h.config.MaxConnections
		if lc == 0 {
			capAt = h.config.MaxConnectionsLevel0
		}

		selected := h.selectNeighbors(candidates, capAt)
		n.Connections[lc] = selected

		for _, neighborID := range selected {
			neighbor, ok := h.nodes[neighborID]
			if !ok || lc >= len(neighbor.Connections) {
				continue
			}
			neighbor.Connections[lc] = append(neighbor.Connections[lc], id)
		}

		for _, neighborID := range selected {
			neighbor, ok := h.nodes[neighborID]
			if !ok || lc >= len(neighbor.Connections) {
				continue
			}
			if len(neighbor.Connections[lc]) <= capAt {
				continue
			}
			neighborCandidates := make([]candidate, 0, len(neighbor.Connections[lc]))
			for _, nid := range neighbor.Connections[lc] {
				other, ok := h.nodes[nid]
				if !ok {
					continue
				}
				neighborCandidates = append(neighborCandidates, candidate{
					id:       nid,
					distance: h.distance(neighbor.Vector, other.Vector),
				})
			}
			sortCandidates(neighborCandidates)
			neighbor.Connections[lc] = h.selectNeighbors(neighborCandidates, capAt)
		}

		currentClosest = idsOf(candidates)
	}

	if level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}

	h.nodes[id] = n
}

// Search returns the k nearest neighbours of query as (id, distance) pairs
// sorted ascending by distance (smaller is better).
func (h *Index) Search(query []float32, k int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry {
		return nil
	}

	currentClosest := []uuid.UUID{h.entryPoint}

	for lc := h.maxLevel; lc >= 1; lc-- {
		best := h.searchLayer(query, currentClosest, 1, lc)
		currentClosest = idsOf(best)
	}

	ef := h.config.EfSearch
	if want := k + len(h.deleted); want > ef {
		ef = want
	}
	candidates := h.searchLayer(query, currentClosest, ef, 0)

	out := make([]Result, 0, k)
	for _, c := range candidates {
		if h.deleted[c.id] {
			continue
		}
		out = append(out, Result{ID: c.id, Distance: c.distance})
		if len(out) == k {
			break
		}
	}
	return out
}

// Result is one (id, distance) pair returned by Search.
type Result struct {
	ID       uuid.UUID
	Distance float32
}

// checkpoint is the gob-serializable snapshot of an Index's state.
type checkpoint struct {
	Config     core.HNSWConfig
	Nodes      []*node
	EntryPoint uuid.UUID
	HasEntry   bool
	MaxLevel   int
	Deleted    []uuid.UUID
}

// Save checkpoints the graph to w so it can be restored with Load instead
// of rebuilt from the store. Rebuilding from the store on open remains the
// documented contract; this is an optional fast path.
func (h *Index) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := checkpoint{
		Config:     h.config,
		EntryPoint: h.entryPoint,
		HasEntry:   h.hasEntry,
		MaxLevel:   h.maxLevel,
	}
	for _, n := range h.nodes {
		cp.Nodes = append(cp.Nodes, n)
	}
	for id := range h.deleted {
		cp.Deleted = append(cp.Deleted, id)
	}

	return gob.NewEncoder(w).Encode(cp)
}

// Load replaces the graph's contents with a checkpoint written by Save.
func (h *Index) Load(r io.Reader) error {
	var cp checkpoint
	if err := gob.NewDecoder(r).Decode(&cp); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.config = cp.Config
	h.entryPoint = cp.EntryPoint
	h.hasEntry = cp.HasEntry
	h.maxLevel = cp.MaxLevel

	h.nodes = make(map[uuid.UUID]*node, len(cp.Nodes))
	for _, n := range cp.Nodes {
		h.nodes[n.ID] = n
	}

	h.deleted = make(map[uuid.UUID]bool, len(cp.Deleted))
	for _, id := range cp.Deleted {
		h.deleted[id] = true
	}

	var seed int64 = 1
	if h.config.RandomSeed != nil {
		seed = *h.config.RandomSeed
	}
	h.rng = rand.New(rand.NewSource(seed))

	return nil
}

func idsOf(cs []candidate) []uuid.UUID {
	out := make([]uuid.UUID, len(cs))
	for i, c := range cs {
		out[i] = c.id
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
