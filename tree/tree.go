// Package tree constructs a distributed linear octree over particle
// coordinates scattered across a group of cooperating ranks. Each rank holds
// a shard of 3-D points; the collective output is a globally sorted,
// load-balanced, 2:1-balanced set of leaf octants whose concatenation across
// ranks tiles the configured domain with no gaps and no overlaps.
//
// Construction runs as a fixed pipeline of phases, each one a global
// synchronization point over the comm fabric: point encoding, a distributed
// bitonic sort, seed and block assembly, block load balancing, local leaf
// refinement, and iterative 2:1 balancing.
package tree

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/disttree/morton"
)

// ErrOutsideDomain is returned when a point cannot be encoded because it lies
// outside the configured bounding cube.
var ErrOutsideDomain = errors.New("point is outside the bounds of the domain")

// Domain is the bounding cube all points are encoded relative to, described
// the same way as an octree root: a center and a side length.
type Domain struct {
	Center     r3.Vector
	SideLength float64
}

// Contains reports whether the point lies within the cube, boundary
// included.
func (d Domain) Contains(p r3.Vector) bool {
	half := d.SideLength / 2
	return math.Abs(p.X-d.Center.X) <= half &&
		math.Abs(p.Y-d.Center.Y) <= half &&
		math.Abs(p.Z-d.Center.Z) <= half
}

// Config carries the construction parameters. It is passed explicitly into
// every phase; nothing is read from ambient state, so a run is deterministic
// given identical inputs.
type Config struct {
	// Depth is the maximum octree level. Leaves never subdivide past it.
	Depth uint8

	// NCrit is the maximum number of points permitted per leaf. A leaf at
	// Depth may still exceed it; such leaves are flagged as overflowed.
	NCrit int

	// Domain is the bounding cube containing every input point.
	Domain Domain
}

// Validate checks the parameters before construction begins.
func (c Config) Validate() error {
	if c.Depth == 0 || c.Depth > morton.MaxDepth {
		return errors.Errorf("invalid depth %d, must be in [1, %d]", c.Depth, morton.MaxDepth)
	}
	if c.NCrit <= 0 {
		return errors.Errorf("invalid ncrit %d, must be positive", c.NCrit)
	}
	if c.Domain.SideLength <= 0 {
		return errors.Errorf("invalid domain side length %.2f", c.Domain.SideLength)
	}
	return nil
}

// validateGroup checks the preconditions construction places on the process
// group. The bitonic network pairs ranks by XOR-ing index bits, so the group
// size must be a power of two; this is a configuration precondition, not
// something the sort recovers from.
func validateGroup(size int) error {
	if size <= 0 || size&(size-1) != 0 {
		return errors.Errorf("invalid group size %d, must be a power of two", size)
	}
	return nil
}
