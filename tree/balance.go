package tree

import (
	"context"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/disttree/comm"
	"go.viam.com/disttree/morton"
)

// balanceLeaves enforces the 2:1 invariant: any two leaves adjacent across a
// face, edge or vertex differ by at most one level. For every leaf it probes
// the 26 neighbor octants one level coarser; a leaf strictly containing such
// an octant is more than one level coarser than the probing leaf and gets
// replaced by its children. Probes landing in another rank's range travel in
// one all-to-all round per iteration, routed by the contiguous block
// partition. Refining can create new violations one level coarser, so the
// loop sweeps until a global fixed point, bounded by twice the maximum depth;
// running on an already balanced set changes nothing.
func balanceLeaves(
	ctx context.Context,
	c comm.Comm,
	leaves []Leaf,
	pts []Point,
	part *blockPartition,
	cfg Config,
	logger golog.Logger,
) ([]Leaf, error) {
	rank, size := c.Rank(), c.Size()

	for iteration := 0; ; iteration++ {
		if iteration > 2*int(cfg.Depth) {
			return nil, errors.Errorf("2:1 balancing did not reach a fixed point after %d iterations", iteration)
		}

		probes := make([][]morton.Key, size)
		toRefine := make(map[morton.Key]struct{})

		for _, leaf := range leaves {
			if leaf.Key.Level() < 2 {
				// Nothing can be two levels coarser.
				continue
			}
			for _, n := range leaf.Key.Neighbors(leaf.Key.Level() - 1) {
				owner := part.ownerOf(n)
				if owner == rank {
					markViolation(leaves, n, toRefine)
				} else {
					probes[owner] = append(probes[owner], n)
				}
			}
		}

		received, err := comm.AlltoallAs(ctx, c, probes)
		if err != nil {
			return nil, err
		}
		for from, foreign := range received {
			if from == rank {
				continue
			}
			for _, n := range foreign {
				markViolation(leaves, n, toRefine)
			}
		}

		changed := len(toRefine) > 0
		anyChanged, err := comm.AllGatherAs(ctx, c, changed)
		if err != nil {
			return nil, err
		}
		if !anyTrue(anyChanged) {
			return leaves, nil
		}
		if changed {
			logger.Debugw("refining for 2:1 balance",
				"rank", rank, "iteration", iteration, "leaves", len(toRefine))
			leaves = refineMarked(leaves, toRefine, pts, cfg)
		}
	}
}

// markViolation records the local leaf strictly containing the probed octant,
// if one exists. Such a leaf is at least two levels coarser than the leaf
// that generated the probe.
func markViolation(leaves []Leaf, probe morton.Key, toRefine map[morton.Key]struct{}) {
	idx := coveringLeaf(leaves, probe)
	if idx < 0 {
		return
	}
	if leaves[idx].Key.StrictAncestorOf(probe) {
		toRefine[leaves[idx].Key] = struct{}{}
	}
}

// coveringLeaf returns the index of the last leaf sorting at or before the
// key, the only candidate that can contain it, or -1.
func coveringLeaf(leaves []Leaf, k morton.Key) int {
	return sort.Search(len(leaves), func(i int) bool {
		return leaves[i].Key > k
	}) - 1
}

// refineMarked replaces every marked leaf with its eight children, keeping
// the sequence sorted and linear and recounting points per child.
func refineMarked(leaves []Leaf, toRefine map[morton.Key]struct{}, pts []Point, cfg Config) []Leaf {
	refined := make([]Leaf, 0, len(leaves)+7*len(toRefine))
	for _, leaf := range leaves {
		if _, marked := toRefine[leaf.Key]; !marked {
			refined = append(refined, leaf)
			continue
		}
		for _, child := range leaf.Key.Children() {
			n := countPoints(pts, child, cfg.Depth)
			refined = append(refined, Leaf{
				Key:       child,
				NumPoints: n,
				Overflow:  n > cfg.NCrit && child.Level() == cfg.Depth,
			})
		}
	}
	return refined
}

func anyTrue(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}
