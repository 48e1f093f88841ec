package tree

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/disttree/comm"
	"go.viam.com/disttree/morton"
)

// blockPartition is the global block tree plus its ownership assignment,
// identical on every rank. Blocks are globally sorted and owners are
// non-decreasing, so rank ranges are contiguous and preserve key order.
type blockPartition struct {
	blocks []morton.Key
	owners []int
}

// ownerOf returns the rank owning the region containing k: the owner of the
// last block sorting at or before k.
func (p *blockPartition) ownerOf(k morton.Key) int {
	idx := searchKeys(p.blocks, k+1) - 1
	if idx < 0 {
		idx = 0
	}
	return p.owners[idx]
}

// blockWeights estimates each block's load as the number of leaves it would
// refine into: the count of points inside it divided by ncrit, rounded up.
func blockWeights(blocks []morton.Key, pts []Point, cfg Config) []int {
	weights := make([]int, len(blocks))
	for i, b := range blocks {
		n := countPoints(pts, b, cfg.Depth)
		weights[i] = (n + cfg.NCrit - 1) / cfg.NCrit
	}
	return weights
}

// shipment carries a contiguous run of blocks and their points to a new
// owner during rebalancing.
type shipment struct {
	Blocks []morton.Key
	Points []Point
}

// assignOwners maps each global block to a rank by walking the weight prefix
// sum: block j goes to floor(P * prefix(j) / total), which keeps cumulative
// load per rank as close as possible to total/P and breaks ties toward the
// earlier rank. With zero total weight blocks are spread evenly by index.
func assignOwners(weights []int, size int) []int {
	total := lo.Sum(weights)
	owners := make([]int, len(weights))
	prefix := 0
	for i, w := range weights {
		var owner int
		if total > 0 {
			owner = prefix * size / total
		} else {
			owner = i * size / len(weights)
		}
		if owner > size-1 {
			owner = size - 1
		}
		owners[i] = owner
		prefix += w
	}
	return owners
}

// balanceLoad redistributes blocks and their points so every rank carries a
// near-equal share of the estimated refinement load. All ranks first learn
// the full block tree and its weights, deterministically compute the same
// assignment, then ship each block and its points to the new owner. Every
// block ends up owned by exactly one rank and rank order preserves the
// global sort order.
func balanceLoad(
	ctx context.Context,
	c comm.Comm,
	blocks []morton.Key,
	pts []Point,
	cfg Config,
) ([]morton.Key, []Point, *blockPartition, error) {
	size := c.Size()
	weights := blockWeights(blocks, pts, cfg)

	gatheredBlocks, err := comm.AllGatherAs(ctx, c, blocks)
	if err != nil {
		return nil, nil, nil, err
	}
	gatheredWeights, err := comm.AllGatherAs(ctx, c, weights)
	if err != nil {
		return nil, nil, nil, err
	}

	// Ranks hold contiguous sorted ranges, so concatenation in rank order is
	// the globally sorted block tree.
	offset := 0
	for r := 0; r < c.Rank(); r++ {
		offset += len(gatheredBlocks[r])
	}
	globalBlocks := lo.Flatten(gatheredBlocks)
	globalWeights := lo.Flatten(gatheredWeights)
	if len(globalBlocks) == 0 {
		return nil, nil, nil, errors.New("the global block tree is empty")
	}
	owners := assignOwners(globalWeights, size)

	shipments := make([]shipment, size)
	for i, b := range blocks {
		dest := owners[offset+i]
		start := searchPoints(pts, b)
		end := searchPoints(pts, b.LastDescendant(cfg.Depth)+1)
		shipments[dest].Blocks = append(shipments[dest].Blocks, b)
		shipments[dest].Points = append(shipments[dest].Points, pts[start:end]...)
	}

	received, err := comm.AlltoallAs(ctx, c, shipments)
	if err != nil {
		return nil, nil, nil, err
	}

	var ownedBlocks []morton.Key
	var ownedPts []Point
	for _, s := range received {
		ownedBlocks = append(ownedBlocks, s.Blocks...)
		ownedPts = append(ownedPts, s.Points...)
	}
	sortKeys(ownedBlocks)
	sortPoints(ownedPts)

	return ownedBlocks, ownedPts, &blockPartition{blocks: globalBlocks, owners: owners}, nil
}
