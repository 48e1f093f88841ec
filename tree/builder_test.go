package tree

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/disttree/comm"
	"go.viam.com/disttree/morton"
)

func TestNewBuilder(t *testing.T) {
	logger := golog.NewTestLogger(t)

	t.Run("rejects bad configurations", func(t *testing.T) {
		for _, cfg := range []Config{
			{Depth: 0, NCrit: 10, Domain: unitDomain},
			{Depth: morton.MaxDepth + 1, NCrit: 10, Domain: unitDomain},
			{Depth: 4, NCrit: 0, Domain: unitDomain},
			{Depth: 4, NCrit: 10, Domain: Domain{SideLength: -1}},
		} {
			_, err := NewBuilder(cfg, logger)
			test.That(t, err, test.ShouldNotBeNil)
		}
	})

	t.Run("rejects group sizes that are not powers of two", func(t *testing.T) {
		cfg := Config{Depth: 4, NCrit: 10, Domain: unitDomain}
		err := comm.RunGroup(context.Background(), 3, func(ctx context.Context, c comm.Comm) error {
			_, err := BuildTree(ctx, c, RandomPoints(10, cfg.Domain, 1), cfg, logger)
			return err
		})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "power of two")
	})

	t.Run("rejects points outside the domain", func(t *testing.T) {
		cfg := Config{Depth: 4, NCrit: 10, Domain: unitDomain}
		err := comm.RunGroup(context.Background(), 1, func(ctx context.Context, c comm.Comm) error {
			_, err := BuildTree(ctx, c, []r3.Vector{{X: 2, Y: 2, Z: 2}}, cfg, logger)
			return err
		})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrOutsideDomain), test.ShouldBeTrue)
	})
}

func TestBuildSingleRankClusters(t *testing.T) {
	cfg := Config{Depth: 2, NCrit: 4, Domain: unitDomain}

	// Eight points, four in each of two sibling level-2 cells: the tree must
	// end with exactly two occupied leaves at level 2 splitting them 4/4.
	pts := make([]r3.Vector, 0, 8)
	for i := 0; i < 4; i++ {
		off := float64(i) * 0.01
		pts = append(pts, r3.Vector{X: 0.05 + off, Y: 0.05, Z: 0.05})
		pts = append(pts, r3.Vector{X: 0.3 + off, Y: 0.3, Z: 0.3})
	}

	results := runBuild(t, 1, cfg, func(int) []r3.Vector { return pts })
	res := results[0]

	keys := gatherLeaves(results)
	checkTiling(t, keys, morton.Root)
	checkTwoToOne(t, keys)

	var full []Leaf
	total := 0
	for _, leaf := range res.Leaves {
		total += leaf.NumPoints
		test.That(t, leaf.NumPoints, test.ShouldBeLessThanOrEqualTo, cfg.NCrit)
		test.That(t, leaf.Overflow, test.ShouldBeFalse)
		if leaf.NumPoints > 0 {
			full = append(full, leaf)
		}
	}
	test.That(t, total, test.ShouldEqual, 8)
	test.That(t, len(full), test.ShouldEqual, 2)
	for _, leaf := range full {
		test.That(t, leaf.Key.Level(), test.ShouldEqual, uint8(2))
		test.That(t, leaf.NumPoints, test.ShouldEqual, 4)
	}

	test.That(t, res.Metrics.LeafCount, test.ShouldEqual, len(res.Leaves))
	test.That(t, res.Metrics.OverflowCount, test.ShouldEqual, 0)
}

func TestBuildFourRanks(t *testing.T) {
	const (
		size       = 4
		ptsPerRank = 25000
	)
	cfg := Config{Depth: 10, NCrit: 150, Domain: unitDomain}

	results := runBuild(t, size, cfg, func(rank int) []r3.Vector {
		return RandomPoints(ptsPerRank, cfg.Domain, int64(rank+1))
	})

	keys := gatherLeaves(results)
	// The concatenated leaves tile the full domain with no gaps or overlaps
	// and hold the 2:1 invariant globally.
	checkTiling(t, keys, morton.Root)
	checkTwoToOne(t, keys)

	totalPts := 0
	var occupancies []float64
	for _, res := range results {
		test.That(t, res.Metrics.Total, test.ShouldBeGreaterThan, 0)
		test.That(t, res.Metrics.LeafCount, test.ShouldEqual, len(res.Leaves))
		for _, leaf := range res.Leaves {
			totalPts += leaf.NumPoints
			// Uniform points at this depth never exhaust the levels.
			test.That(t, leaf.Overflow, test.ShouldBeFalse)
			test.That(t, leaf.NumPoints, test.ShouldBeLessThanOrEqualTo, cfg.NCrit)
			occupancies = append(occupancies, float64(leaf.NumPoints))
		}
	}
	// Every point is accounted for exactly once: leaf count times average
	// occupancy recovers the input size.
	test.That(t, totalPts, test.ShouldEqual, size*ptsPerRank)
	mean := stat.Mean(occupancies, nil)
	test.That(t, mean*float64(len(occupancies)), test.ShouldAlmostEqual, float64(size*ptsPerRank), 1e-6)
	test.That(t, mean, test.ShouldBeLessThanOrEqualTo, float64(cfg.NCrit))
}

func TestBuildRanksDisjointRegions(t *testing.T) {
	// Each rank's points cluster in its own region, forcing the sort and the
	// load balancer to move ownership around.
	const size = 2
	cfg := Config{Depth: 8, NCrit: 30, Domain: unitDomain}

	results := runBuild(t, size, cfg, func(rank int) []r3.Vector {
		// Rank 0 generates points everywhere, rank 1 only near one corner.
		if rank == 0 {
			return RandomPoints(4000, cfg.Domain, 5)
		}
		corner := Domain{Center: r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, SideLength: 0.2}
		return RandomPoints(4000, corner, 6)
	})

	keys := gatherLeaves(results)
	checkTiling(t, keys, morton.Root)
	checkTwoToOne(t, keys)

	totalPts := 0
	for _, res := range results {
		for _, leaf := range res.Leaves {
			totalPts += leaf.NumPoints
			test.That(t, leaf.NumPoints <= cfg.NCrit || leaf.Overflow, test.ShouldBeTrue)
		}
	}
	test.That(t, totalPts, test.ShouldEqual, 8000)
}
