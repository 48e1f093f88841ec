package tree

import (
	"context"

	"github.com/edaniels/golog"

	"go.viam.com/disttree/comm"
)

// bitonicPlan returns the partner rank and which half of the merged buffer to
// keep for one compare-split of the bitonic network. stageMask is the size of
// the bitonic sequence being merged (2, 4, ..., group size) and stepMask the
// XOR distance of this exchange within the stage.
func bitonicPlan(stageMask, stepMask, rank int) (partner int, keepLow bool) {
	partner = rank ^ stepMask
	ascending := rank&stageMask == 0
	return partner, ascending == (rank < partner)
}

// distributedSort globally sorts points by key over the rank topology so
// that for ranks i < j every key on i sorts <= every key on j, while each
// rank keeps its own point count. It is a bitonic network of merge-split
// exchanges: log2(P) stages, each a short sequence of pairwise buffer swaps.
// The group size must be a power of two, checked before construction begins.
func distributedSort(ctx context.Context, c comm.Comm, pts []Point, logger golog.Logger) ([]Point, error) {
	sortPoints(pts)
	size := c.Size()

	for stageMask := 2; stageMask <= size; stageMask <<= 1 {
		for stepMask := stageMask >> 1; stepMask > 0; stepMask >>= 1 {
			partner, keepLow := bitonicPlan(stageMask, stepMask, c.Rank())
			theirs, err := comm.SendRecvAs(ctx, c, partner, pts)
			if err != nil {
				return nil, err
			}
			logger.Debugw("bitonic exchange",
				"rank", c.Rank(), "partner", partner, "keepLow", keepLow, "received", len(theirs))
			pts = mergeSplit(pts, theirs, len(pts), keepLow)
		}
	}
	return pts, nil
}

// mergeSplit merges two key-sorted buffers and keeps either the lowest or the
// highest `keep` points. Neither input is modified; the low and high rank of
// a pair keep their own counts, which together cover the merge exactly.
func mergeSplit(mine, theirs []Point, keep int, keepLow bool) []Point {
	merged := make([]Point, 0, len(mine)+len(theirs))
	i, j := 0, 0
	for i < len(mine) && j < len(theirs) {
		if mine[i].Key <= theirs[j].Key {
			merged = append(merged, mine[i])
			i++
		} else {
			merged = append(merged, theirs[j])
			j++
		}
	}
	merged = append(merged, mine[i:]...)
	merged = append(merged, theirs[j:]...)

	if keepLow {
		return merged[:keep]
	}
	return merged[len(merged)-keep:]
}
