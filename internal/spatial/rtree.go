package spatial

import (
	"context"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/sells-group/utility-lookup/internal/model"
)

// feature pairs a territory polygon's geometry with its attributes. The
// embedded Polygonal provides Bounds() for the R-tree.
type feature struct {
	geom.Polygonal
	attrs model.TerritoryPolygon
}

// MemoryIndex is an in-memory spatial index holding one R-tree per utility
// type. It is safe for concurrent queries once loading has finished.
type MemoryIndex struct {
	mu     sync.RWMutex
	trees  map[model.UtilityType]*rtree.Rtree
	counts map[model.UtilityType]int
	loaded bool
}

// NewMemoryIndex returns an empty index. Call Insert (or a loader) to
// populate it, then MarkLoaded once all layers are in.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		trees:  make(map[model.UtilityType]*rtree.Rtree),
		counts: make(map[model.UtilityType]int),
	}
}

// Insert adds a territory polygon to the index.
func (idx *MemoryIndex) Insert(poly geom.Polygonal, attrs model.TerritoryPolygon) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tree, ok := idx.trees[attrs.Utility]
	if !ok {
		tree = rtree.NewTree(25, 50)
		idx.trees[attrs.Utility] = tree
	}
	tree.Insert(&feature{Polygonal: poly, attrs: attrs})
	idx.counts[attrs.Utility]++
}

// QueryPoint implements Index. The R-tree narrows candidates by bounding
// box; an exact containment test filters the rest.
func (idx *MemoryIndex) QueryPoint(_ context.Context, lat, lon float64, utility model.UtilityType) ([]model.TerritoryPolygon, error) {
	idx.mu.RLock()
	tree := idx.trees[utility]
	idx.mu.RUnlock()
	if tree == nil {
		return nil, nil
	}

	pt := geom.Point{X: lon, Y: lat}
	var hits []model.TerritoryPolygon
	for _, item := range tree.SearchIntersect(pt.Bounds()) {
		f := item.(*feature)
		if pt.Within(f.Polygonal) == geom.Outside {
			continue
		}
		hits = append(hits, f.attrs)
	}
	sortByArea(hits)
	return hits, nil
}

// MarkLoaded flags the index as fully populated.
func (idx *MemoryIndex) MarkLoaded() {
	idx.mu.Lock()
	idx.loaded = true
	idx.mu.Unlock()
}

// Loaded reports whether all layers have finished loading.
func (idx *MemoryIndex) Loaded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loaded
}

// Count returns the number of polygons indexed for a utility type.
func (idx *MemoryIndex) Count(utility model.UtilityType) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.counts[utility]
}

// Len returns the total number of indexed polygons across all utilities.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var n int
	for _, c := range idx.counts {
		n += c
	}
	return n
}
