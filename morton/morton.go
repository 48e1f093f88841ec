// Package morton implements the Morton key codec used to address octree nodes.
// A key identifies one octant by the integer coordinates of its lower corner
// (the anchor, expressed on the finest resolution grid) together with its
// refinement level. Keys pack into a single sortable 64-bit word so that a
// plain numeric sort yields the space filling curve order with ancestors
// placed before their descendants.
package morton

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MaxDepth is the deepest refinement level a key can represent. Anchors
	// are expressed on the 2^MaxDepth grid, giving 3*MaxDepth interleaved
	// code bits per key.
	MaxDepth = 16

	// GridSize is the number of cells per axis on the finest grid.
	GridSize = 1 << MaxDepth

	codeBits   = 3 * MaxDepth
	levelBits  = 5
	levelMask  = 1<<levelBits - 1
	anchorMask = GridSize - 1
)

// Key is a packed Morton key: the bit-interleaved anchor occupies the high
// bits and the level occupies the low levelBits bits. The zero value is the
// root octant.
type Key uint64

// Root is the key of the octant covering the whole domain.
const Root = Key(0)

// Anchor is the lower corner of an octant on the finest resolution grid.
type Anchor struct {
	X, Y, Z uint32
}

// Encode packs an anchor and level into a key. It returns an error if the
// level exceeds MaxDepth, a coordinate falls outside the finest grid, or the
// anchor is not aligned to the grid implied by the level.
func Encode(a Anchor, level uint8) (Key, error) {
	if level > MaxDepth {
		return 0, errors.Errorf("level %d exceeds the maximum depth %d", level, MaxDepth)
	}
	if a.X >= GridSize || a.Y >= GridSize || a.Z >= GridSize {
		return 0, errors.Errorf("anchor (%d, %d, %d) is outside the %d^3 grid", a.X, a.Y, a.Z, GridSize)
	}
	align := uint32(1)<<(MaxDepth-level) - 1
	if a.X&align != 0 || a.Y&align != 0 || a.Z&align != 0 {
		return 0, errors.Errorf("anchor (%d, %d, %d) is not aligned to the level %d grid", a.X, a.Y, a.Z, level)
	}
	code := spread(uint64(a.X)) | spread(uint64(a.Y))<<1 | spread(uint64(a.Z))<<2
	return Key(code<<levelBits | uint64(level)), nil
}

// Decode is the exact inverse of Encode.
func (k Key) Decode() (Anchor, uint8) {
	return k.Anchor(), k.Level()
}

// Level returns the refinement level of the key, with the root at zero.
func (k Key) Level() uint8 {
	return uint8(k & levelMask)
}

// Anchor returns the lower corner of the key's octant on the finest grid.
func (k Key) Anchor() Anchor {
	code := k.code()
	return Anchor{
		X: uint32(compact(code)),
		Y: uint32(compact(code >> 1)),
		Z: uint32(compact(code >> 2)),
	}
}

// Code returns the bit-interleaved spatial code: the position of the
// octant's first finest-grid cell along the space filling curve.
func (k Key) Code() uint64 {
	return k.code()
}

// SideLength returns the octant's edge length in finest-grid cells.
func (k Key) SideLength() uint32 {
	return 1 << (MaxDepth - k.Level())
}

// String renders the key as anchor plus level for logs and test failures.
func (k Key) String() string {
	a, l := k.Decode()
	return fmt.Sprintf("(%d, %d, %d, L%d)", a.X, a.Y, a.Z, l)
}

func (k Key) code() uint64 {
	return uint64(k) >> levelBits
}

func fromCode(code uint64, level uint8) Key {
	return Key(code<<levelBits | uint64(level))
}

// spread inserts two zero bits between each of the low 21 bits of v.
func spread(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}

// compact is the inverse of spread.
func compact(v uint64) uint64 {
	v &= 0x1249249249249249
	v = (v ^ v>>2) & 0x10c30c30c30c30c3
	v = (v ^ v>>4) & 0x100f00f00f00f00f
	v = (v ^ v>>8) & 0x1f0000ff0000ff
	v = (v ^ v>>16) & 0x1f00000000ffff
	v = (v ^ v>>32) & 0x1fffff
	return v
}
