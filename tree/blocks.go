package tree

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/disttree/comm"
	"go.viam.com/disttree/morton"
)

// findSeeds returns the coarsest octants spanning the gap between the
// locally smallest and largest point keys. Seeds anchor the construction of
// the global block tree; they belong to exactly one rank until blocks are
// assigned owners.
func findSeeds(pts []Point) ([]morton.Key, error) {
	if len(pts) == 0 {
		return nil, errors.New("cannot seed an empty rank")
	}
	minKey, maxKey := pts[0].Key, pts[len(pts)-1].Key
	if minKey == maxKey {
		return []morton.Key{minKey}, nil
	}

	region, err := CompleteRegion(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	if len(region) == 0 {
		// Adjacent extremes leave no gap to coarsen; the extreme keys
		// themselves seed this rank's range.
		return []morton.Key{minKey, maxKey}, nil
	}

	coarsest := region[0].Level()
	for _, k := range region[1:] {
		if k.Level() < coarsest {
			coarsest = k.Level()
		}
	}
	seeds := make([]morton.Key, 0, len(region))
	for _, k := range region {
		if k.Level() == coarsest {
			seeds = append(seeds, k)
		}
	}
	return seeds, nil
}

// completeBlocktree turns per-rank seeds into this rank's slice of one
// complete linear octree spanning the whole domain. Adapted from algorithm 4
// of Sundar, Sampath and Biros: the first and last rank extend their seed
// range to the domain corners, each rank learns its right neighbor's first
// seed through a single point-to-point exchange, and the gaps between
// consecutive seeds are filled with CompleteRegion. Concatenated in rank
// order the returned blocks tile the domain with no gaps and no overlaps.
func completeBlocktree(ctx context.Context, c comm.Comm, seeds []morton.Key, depth uint8) ([]morton.Key, error) {
	if len(seeds) == 0 {
		return nil, errors.New("cannot complete a block tree without seeds")
	}
	rank, size := c.Rank(), c.Size()

	if rank == 0 {
		first := morton.Root.FirstDescendant(depth)
		if !seeds[0].AncestorOf(first) {
			// The first child of the finest common ancestor of the domain's
			// first cell and the minimum seed covers the domain corner and
			// sorts before every seed.
			fca := morton.FinestCommonAncestor(first, seeds[0])
			seeds = append([]morton.Key{fca.Children()[0]}, seeds...)
		}
	}
	if rank == size-1 {
		last := morton.Root.LastDescendant(depth)
		lastSeed := seeds[len(seeds)-1]
		if !lastSeed.AncestorOf(last) {
			fca := morton.FinestCommonAncestor(last, lastSeed)
			children := fca.Children()
			seeds = append(seeds, children[len(children)-1])
		}
	}

	// Each rank's blocks run up to its right neighbor's first seed.
	if rank > 0 {
		if err := c.Send(ctx, rank-1, seeds[0]); err != nil {
			return nil, err
		}
	}
	if rank < size-1 {
		next, err := comm.RecvAs[morton.Key](ctx, c, rank+1)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, next)
	}

	var blocks []morton.Key
	for i := 0; i+1 < len(seeds); i++ {
		blocks = append(blocks, seeds[i])
		if seeds[i+1] <= seeds[i] {
			return nil, errors.Errorf("seeds out of order: %s before %s", seeds[i], seeds[i+1])
		}
		region, err := CompleteRegion(seeds[i], seeds[i+1])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, region...)
	}
	// The final seed belongs to the last rank; everywhere else it is the
	// neighbor's first block.
	if rank == size-1 {
		blocks = append(blocks, seeds[len(seeds)-1])
	}

	sortKeys(blocks)
	return blocks, nil
}

// transferPointsToBlocks moves points that sort below this rank's first
// block to the left neighbor, whose blocks cover them. Afterwards every rank
// holds exactly the points falling inside its own block range.
func transferPointsToBlocks(ctx context.Context, c comm.Comm, pts []Point, firstBlock morton.Key) ([]Point, error) {
	rank, size := c.Rank(), c.Size()

	if rank > 0 {
		cut := searchPoints(pts, firstBlock)
		if err := c.Send(ctx, rank-1, append([]Point(nil), pts[:cut]...)); err != nil {
			return nil, err
		}
		pts = pts[cut:]
	}
	if rank < size-1 {
		received, err := comm.RecvAs[[]Point](ctx, c, rank+1)
		if err != nil {
			return nil, err
		}
		// The neighbor's points all sort after ours, so appending keeps the
		// buffer sorted.
		pts = append(pts, received...)
	}
	return pts, nil
}
