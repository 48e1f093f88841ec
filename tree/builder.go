package tree

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/disttree/comm"
)

// Metrics reports per-run scalars at the phase boundaries for the
// surrounding benchmarking layer.
type Metrics struct {
	// Total is the wall-clock time of the whole construction.
	Total time.Duration

	// Encode is the time spent deriving point keys.
	Encode time.Duration

	// Sort is the time spent in the distributed sort.
	Sort time.Duration

	// LeafCount is the number of locally owned leaves.
	LeafCount int

	// OverflowCount is how many of those leaves exceed NCrit at the maximum
	// depth.
	OverflowCount int
}

// Result is one rank's share of the constructed tree: its sorted, linear,
// 2:1-balanced leaf sequence together with the points it owns. Concatenating
// every rank's leaves in rank order yields the complete global tree.
type Result struct {
	Leaves  []Leaf
	Points  []Point
	Metrics Metrics
}

// Builder runs the construction pipeline with a fixed configuration.
type Builder struct {
	cfg    Config
	logger golog.Logger
	clock  clock.Clock
}

// NewBuilder validates the configuration and returns a builder. Construction
// fails fast on an invalid depth, ncrit or domain.
func NewBuilder(cfg Config, logger golog.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, logger: logger, clock: clock.New()}, nil
}

// BuildTree constructs this rank's share of the distributed octree. Every
// rank of the group must call it simultaneously with its local points.
func BuildTree(
	ctx context.Context,
	c comm.Comm,
	pts []r3.Vector,
	cfg Config,
	logger golog.Logger,
) (*Result, error) {
	b, err := NewBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	return b.Build(ctx, c, pts)
}

// Build runs the phases in order: encode, distributed sort, seed and block
// assembly, load balancing, leaf refinement and 2:1 balancing. Each phase
// boundary is a synchronization point; any error is fatal to the whole run
// since partial results are not meaningful.
func (b *Builder) Build(ctx context.Context, c comm.Comm, pts []r3.Vector) (*Result, error) {
	if err := validateGroup(c.Size()); err != nil {
		return nil, err
	}
	start := b.clock.Now()
	var metrics Metrics

	encoded, err := EncodePoints(pts, b.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding points")
	}
	metrics.Encode = b.clock.Since(start)

	sortStart := b.clock.Now()
	sorted, err := distributedSort(ctx, c, encoded, b.logger)
	if err != nil {
		return nil, errors.Wrap(err, "sorting points")
	}
	metrics.Sort = b.clock.Since(sortStart)
	if len(sorted) == 0 {
		return nil, errors.Errorf("rank %d owns no points after sorting, reduce the group size", c.Rank())
	}

	seeds, err := findSeeds(sorted)
	if err != nil {
		return nil, errors.Wrap(err, "finding seeds")
	}
	blocks, err := completeBlocktree(ctx, c, seeds, b.cfg.Depth)
	if err != nil {
		return nil, errors.Wrap(err, "completing the block tree")
	}
	sorted, err = transferPointsToBlocks(ctx, c, sorted, blocks[0])
	if err != nil {
		return nil, errors.Wrap(err, "transferring points to blocks")
	}

	blocks, sorted, partition, err := balanceLoad(ctx, c, blocks, sorted, b.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "balancing load")
	}

	leaves := refineBlocks(blocks, sorted, b.cfg, b.logger)
	leaves, err = balanceLeaves(ctx, c, leaves, sorted, partition, b.cfg, b.logger)
	if err != nil {
		return nil, errors.Wrap(err, "balancing the tree")
	}

	metrics.Total = b.clock.Since(start)
	metrics.LeafCount = len(leaves)
	for _, leaf := range leaves {
		if leaf.Overflow {
			metrics.OverflowCount++
		}
	}
	b.logger.Infow("tree construction complete",
		"rank", c.Rank(),
		"points", len(sorted),
		"blocks", len(blocks),
		"leaves", metrics.LeafCount,
		"overflowed", metrics.OverflowCount,
		"total", metrics.Total,
		"encode", metrics.Encode,
		"sort", metrics.Sort,
	)

	return &Result{Leaves: leaves, Points: sorted, Metrics: metrics}, nil
}
