package mesh

import (
	"math"
	"sort"
)

// PeriodicIndex identifies which periodic boundary transform, if any,
// relates an entity to its donor. The zero value means "not periodic".
type PeriodicIndex struct {
	Marker int
	Valid  bool
}

// Periodic returns the periodic index for the given boundary marker.
func Periodic(marker int) PeriodicIndex {
	return PeriodicIndex{Marker: marker, Valid: true}
}

// NoPeriodic returns the index of a non-periodic entity.
func NoPeriodic() PeriodicIndex {
	return PeriodicIndex{}
}

// Less orders periodic indices: non-periodic sorts before any marker.
func (p PeriodicIndex) Less(q PeriodicIndex) bool {
	if p.Valid != q.Valid {
		return !p.Valid
	}
	return p.Valid && p.Marker < q.Marker
}

// Point is one entry of the deduplicated point collection. Its identity is
// the pair (GlobalID, Donor); periodic images of the same physical point
// are distinct entities.
type Point struct {
	GlobalID uint64
	Donor    PeriodicIndex
	Coords   [3]float64
}

// PointKey is the identity of a Point, usable as a map key.
type PointKey struct {
	GlobalID uint64
	Donor    PeriodicIndex
}

// Key returns the identity of p.
func (p Point) Key() PointKey {
	return PointKey{GlobalID: p.GlobalID, Donor: p.Donor}
}

// Less orders points first by periodic index, then by global ID.
func (p Point) Less(q Point) bool {
	if p.Donor != q.Donor {
		return p.Donor.Less(q.Donor)
	}
	return p.GlobalID < q.GlobalID
}

// SameIdentity reports whether both identity fields match.
func (p Point) SameIdentity(q Point) bool {
	return p.GlobalID == q.GlobalID && p.Donor == q.Donor
}

// SortPoints sorts the slice by (periodic index, global ID).
func SortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Less(pts[j]) })
}

// DedupPoints sorts the slice and removes entries with duplicate identity,
// returning the shortened slice. Coordinates of duplicates are identical by
// construction, so the first occurrence is kept.
func DedupPoints(pts []Point) []Point {
	SortPoints(pts)
	out := pts[:0]
	for i := range pts {
		if len(out) == 0 || !out[len(out)-1].SameIdentity(pts[i]) {
			out = append(out, pts[i])
		}
	}
	return out
}

// ContainsIdentity reports whether the sorted slice pts holds a point with
// the identity of p. pts must be sorted by (periodic index, global ID).
func ContainsIdentity(pts []Point, p Point) bool {
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Less(p) })
	return i < len(pts) && pts[i].SameIdentity(p)
}

// ComparePoint is the geometry-aware representation of a point used for
// tolerance-based spatial matching. Two compare points are considered equal
// when every per-axis coordinate difference falls below the minimum of the
// two tolerances; the dimension is the primary discriminator.
type ComparePoint struct {
	Dim    int
	NodeID int // local index into the mesh point collection
	Tol    float64
	Coords [3]float64
}

// Less orders compare points by dimension, then coordinates subject to the
// matching tolerance. Points within tolerance of each other are neither
// less nor greater, i.e. equal.
func (a ComparePoint) Less(b ComparePoint) bool {
	if a.Dim != b.Dim {
		return a.Dim < b.Dim // This should never be active.
	}
	tol := math.Min(a.Tol, b.Tol)
	for l := 0; l < a.Dim; l++ {
		if math.Abs(a.Coords[l]-b.Coords[l]) > tol {
			return a.Coords[l] < b.Coords[l]
		}
	}
	return false
}

// Equal reports whether a and b match within their tolerances.
func (a ComparePoint) Equal(b ComparePoint) bool {
	return !a.Less(b) && !b.Less(a)
}

// PointIndex is a sorted set of compare points supporting tolerance-based
// coordinate lookups via binary search.
type PointIndex struct {
	points []ComparePoint
}

// NewPointIndex sorts pts and wraps them in a searchable index.
func NewPointIndex(pts []ComparePoint) *PointIndex {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Less(pts[j]) })
	return &PointIndex{points: pts}
}

// Search looks up the entry matching p within tolerance. The second return
// is false when no entry matches.
func (pi *PointIndex) Search(p ComparePoint) (ComparePoint, bool) {
	i := sort.Search(len(pi.points), func(i int) bool {
		return !pi.points[i].Less(p)
	})
	if i < len(pi.points) && pi.points[i].Equal(p) {
		return pi.points[i], true
	}
	return ComparePoint{}, false
}

// Len returns the number of indexed points.
func (pi *PointIndex) Len() int {
	return len(pi.points)
}
