package tree

import (
	"math"
	"math/rand"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/disttree/morton"
)

// Point is a 3-D coordinate plus the Morton key it sorts and places by. The
// key is computed once at the configured maximum depth and never mutated; a
// point is owned by exactly one rank at any time and moves between ranks only
// through the explicit redistribution steps.
type Point struct {
	P   r3.Vector
	Key morton.Key
}

// EncodePoints derives the placement key for every point at cfg.Depth. Any
// point outside the domain makes the whole encoding fail; the caller must
// abort construction since the other ranks cannot safely continue with a
// partial global ordering.
func EncodePoints(pts []r3.Vector, cfg Config) ([]Point, error) {
	encoded := make([]Point, len(pts))
	for i, p := range pts {
		key, err := encodePoint(p, cfg.Domain, cfg.Depth)
		if err != nil {
			return nil, err
		}
		encoded[i] = Point{P: p, Key: key}
	}
	return encoded, nil
}

func encodePoint(p r3.Vector, d Domain, depth uint8) (morton.Key, error) {
	if !d.Contains(p) {
		return 0, errors.Wrapf(ErrOutsideDomain, "point (%.4f, %.4f, %.4f)", p.X, p.Y, p.Z)
	}
	cells := uint32(1) << depth
	shift := morton.MaxDepth - depth
	anchor := morton.Anchor{
		X: cellIndex(p.X, d.Center.X, d.SideLength, cells) << shift,
		Y: cellIndex(p.Y, d.Center.Y, d.SideLength, cells) << shift,
		Z: cellIndex(p.Z, d.Center.Z, d.SideLength, cells) << shift,
	}
	return morton.Encode(anchor, depth)
}

// cellIndex maps one coordinate to its cell on the 2^depth grid. Points on
// the upper domain boundary land in the last cell.
func cellIndex(v, center, side float64, cells uint32) uint32 {
	lower := center - side/2
	idx := int64(math.Floor((v - lower) / side * float64(cells)))
	if idx < 0 {
		idx = 0
	}
	if idx >= int64(cells) {
		idx = int64(cells) - 1
	}
	return uint32(idx)
}

// sortPoints orders points by key in place.
func sortPoints(pts []Point) {
	sort.Slice(pts, func(i, j int) bool {
		return pts[i].Key < pts[j].Key
	})
}

// searchPoints returns the index of the first point with key >= k.
func searchPoints(pts []Point, k morton.Key) int {
	return sort.Search(len(pts), func(i int) bool {
		return pts[i].Key >= k
	})
}

// countPoints returns how many points fall within the octant's volume. It
// relies on pts being sorted and point keys sharing the octant's depth or
// finer, so the octant's key range bounds exactly its contained points.
func countPoints(pts []Point, k morton.Key, depth uint8) int {
	lo := searchPoints(pts, k)
	hi := searchPoints(pts, k.LastDescendant(depth)+1)
	return hi - lo
}

// RandomPoints generates a reproducible uniform distribution of points inside
// the domain, for tests and benchmark runs.
func RandomPoints(n int, d Domain, seed int64) []r3.Vector {
	r := rand.New(rand.NewSource(seed))
	half := d.SideLength / 2
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{
			X: d.Center.X - half + r.Float64()*d.SideLength,
			Y: d.Center.Y - half + r.Float64()*d.SideLength,
			Z: d.Center.Z - half + r.Float64()*d.SideLength,
		}
	}
	return pts
}
