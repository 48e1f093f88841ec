package tree

import (
	"context"
	"sort"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/disttree/comm"
	"go.viam.com/disttree/morton"
)

// unitDomain is the cube [0,1)^3 used throughout the tests.
var unitDomain = Domain{Center: r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}, SideLength: 1}

// cellVolume is an octant's volume in finest-grid cells.
func cellVolume(k morton.Key) uint64 {
	side := uint64(k.SideLength())
	return side * side * side
}

// checkTiling asserts that the keys are sorted, pairwise non-overlapping and
// together cover the octant exactly.
func checkTiling(t *testing.T, keys []morton.Key, cover morton.Key) {
	t.Helper()

	test.That(t, sort.SliceIsSorted(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	}), test.ShouldBeTrue)

	var cells uint64
	for i, k := range keys {
		test.That(t, cover.AncestorOf(k), test.ShouldBeTrue)
		cells += cellVolume(k)
		if i+1 < len(keys) {
			test.That(t, k.AncestorOf(keys[i+1]), test.ShouldBeFalse)
			// Sorted and linear implies disjoint ranges.
			test.That(t, k.LastDescendant(morton.MaxDepth) < keys[i+1], test.ShouldBeTrue)
		}
	}
	test.That(t, cells, test.ShouldEqual, cellVolume(cover))
}

// checkTwoToOne asserts the 2:1 invariant over a global sorted leaf set: no
// leaf strictly contains a coarser neighbor octant of another leaf.
func checkTwoToOne(t *testing.T, keys []morton.Key) {
	t.Helper()

	for _, k := range keys {
		if k.Level() < 2 {
			continue
		}
		for _, n := range k.Neighbors(k.Level() - 1) {
			idx := sort.Search(len(keys), func(i int) bool {
				return keys[i] > n
			}) - 1
			if idx >= 0 {
				test.That(t, keys[idx].StrictAncestorOf(n), test.ShouldBeFalse)
			}
		}
	}
}

// gatherLeaves concatenates per-rank results into the global leaf key
// sequence, in rank order.
func gatherLeaves(results []*Result) []morton.Key {
	var keys []morton.Key
	for _, res := range results {
		for _, leaf := range res.Leaves {
			keys = append(keys, leaf.Key)
		}
	}
	return keys
}

// runBuild constructs the tree over an in-process group and returns the
// per-rank results in rank order.
func runBuild(t *testing.T, size int, cfg Config, ptsForRank func(rank int) []r3.Vector) []*Result {
	t.Helper()

	logger := golog.NewTestLogger(t)
	results := make([]*Result, size)
	err := comm.RunGroup(context.Background(), size, func(ctx context.Context, c comm.Comm) error {
		res, err := BuildTree(ctx, c, ptsForRank(c.Rank()), cfg, logger)
		if err != nil {
			return err
		}
		results[c.Rank()] = res
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	return results
}
