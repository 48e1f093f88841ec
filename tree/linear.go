package tree

import (
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/disttree/morton"
)

// Linearize sorts the keys and removes duplicates and ancestor/descendant
// overlaps, keeping the finer descendant since it carries more information.
// The input is not modified.
func Linearize(keys []morton.Key) []morton.Key {
	if len(keys) == 0 {
		return nil
	}
	sorted := append([]morton.Key(nil), keys...)
	sortKeys(sorted)

	linear := make([]morton.Key, 0, len(sorted))
	for i := 0; i+1 < len(sorted); i++ {
		// In sorted order an ancestor immediately precedes its descendants,
		// so the adjacent check removes every overlap.
		if sorted[i].AncestorOf(sorted[i+1]) {
			continue
		}
		linear = append(linear, sorted[i])
	}
	return append(linear, sorted[len(sorted)-1])
}

// CompleteRegion computes the minimal complete linear octree filling the
// open spatial interval between a and b, both exclusive. Adapted from
// algorithm 3 of Sundar, Sampath and Biros, implemented with an explicit
// worklist so high configured depths never strain the call stack. The result
// may be empty when a and b are adjacent.
func CompleteRegion(a, b morton.Key) ([]morton.Key, error) {
	if b <= a {
		return nil, errors.Errorf("region bounds out of order: %s must sort before %s", a, b)
	}
	if a.AncestorOf(b) {
		return nil, errors.Errorf("region bounds overlap: %s contains %s", a, b)
	}

	fca := morton.FinestCommonAncestor(a, b)
	worklist := append([]morton.Key(nil), fca.Children()...)
	var region []morton.Key

	for len(worklist) > 0 {
		w := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		switch {
		case a < w && w < b && !w.AncestorOf(b):
			// Strictly inside the gap and disjoint from both bounds.
			region = append(region, w)
		case w.StrictAncestorOf(a) || w.StrictAncestorOf(b):
			worklist = append(worklist, w.Children()...)
		}
	}

	sortKeys(region)
	return region, nil
}

func sortKeys(keys []morton.Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
}

// searchKeys returns the index of the first key >= k.
func searchKeys(keys []morton.Key, k morton.Key) int {
	return sort.Search(len(keys), func(i int) bool {
		return keys[i] >= k
	})
}
