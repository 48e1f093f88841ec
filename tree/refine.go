package tree

import (
	"github.com/edaniels/golog"

	"go.viam.com/disttree/morton"
)

// Leaf is a terminal octree node: its key, how many of this rank's points it
// holds, and whether it still exceeds NCrit at the maximum depth.
type Leaf struct {
	Key       morton.Key
	NumPoints int
	Overflow  bool
}

// refineBlocks subdivides every owned block until each resulting leaf holds
// at most NCrit points or sits at the maximum depth. A leaf at the maximum
// depth still over capacity is accepted and flagged rather than retried;
// construction completes and the caller is told the constraint was not fully
// satisfiable. Purely local: points were already redistributed to the owning
// rank. The returned leaves are sorted, linear and tile the owned blocks
// exactly.
func refineBlocks(blocks []morton.Key, pts []Point, cfg Config, logger golog.Logger) []Leaf {
	var leaves []Leaf
	var stack []morton.Key

	for _, b := range blocks {
		stack = append(stack[:0], b)
		for len(stack) > 0 {
			k := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			n := countPoints(pts, k, cfg.Depth)
			if n > cfg.NCrit && k.Level() < cfg.Depth {
				// Push in reverse so children pop in ascending key order.
				children := k.Children()
				for i := len(children) - 1; i >= 0; i-- {
					stack = append(stack, children[i])
				}
				continue
			}

			overflow := n > cfg.NCrit
			if overflow {
				logger.Warnw("leaf still exceeds capacity at maximum depth",
					"leaf", k.String(), "points", n, "ncrit", cfg.NCrit)
			}
			leaves = append(leaves, Leaf{Key: k, NumPoints: n, Overflow: overflow})
		}
	}
	return leaves
}
