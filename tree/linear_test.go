package tree

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/disttree/morton"
)

func mustEncode(t *testing.T, x, y, z uint32, level uint8) morton.Key {
	t.Helper()
	k, err := morton.Encode(morton.Anchor{X: x, Y: y, Z: z}, level)
	test.That(t, err, test.ShouldBeNil)
	return k
}

func TestLinearize(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		test.That(t, Linearize(nil), test.ShouldBeNil)
	})

	t.Run("drops duplicates and ancestors", func(t *testing.T) {
		parent := mustEncode(t, 0, 0, 0, 1)
		children := parent.Children()

		keys := []morton.Key{children[3], parent, children[3], children[0], morton.Root}
		linear := Linearize(keys)
		test.That(t, linear, test.ShouldResemble, []morton.Key{children[0], children[3]})
	})

	t.Run("random keys end up linear", func(t *testing.T) {
		r := rand.New(rand.NewSource(3))
		keys := make([]morton.Key, 200)
		for i := range keys {
			level := uint8(1 + r.Intn(5))
			mask := (uint32(1)<<level - 1) << (morton.MaxDepth - level)
			keys[i] = mustEncode(t,
				uint32(r.Intn(morton.GridSize))&mask,
				uint32(r.Intn(morton.GridSize))&mask,
				uint32(r.Intn(morton.GridSize))&mask,
				level)
		}
		linear := Linearize(keys)
		for i := 0; i+1 < len(linear); i++ {
			test.That(t, linear[i] < linear[i+1], test.ShouldBeTrue)
			test.That(t, linear[i].AncestorOf(linear[i+1]), test.ShouldBeFalse)
		}
	})
}

func TestCompleteRegion(t *testing.T) {
	t.Run("bounds must be ordered", func(t *testing.T) {
		a := mustEncode(t, 0, 0, 0, 2)
		_, err := CompleteRegion(a, a)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "out of order")
	})

	t.Run("bounds must not overlap", func(t *testing.T) {
		parent := mustEncode(t, 0, 0, 0, 1)
		_, err := CompleteRegion(parent, parent.Children()[4])
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "overlap")
	})

	t.Run("adjacent siblings leave nothing to fill", func(t *testing.T) {
		children := morton.Root.Children()
		region, err := CompleteRegion(children[2], children[3])
		test.That(t, err, test.ShouldBeNil)
		test.That(t, region, test.ShouldBeEmpty)
	})

	t.Run("siblings at a distance fill with the gap octants", func(t *testing.T) {
		children := morton.Root.Children()
		region, err := CompleteRegion(children[0], children[7])
		test.That(t, err, test.ShouldBeNil)
		test.That(t, region, test.ShouldResemble, []morton.Key{
			children[1], children[2], children[3], children[4], children[5], children[6],
		})
	})

	t.Run("region tiles the open interval", func(t *testing.T) {
		r := rand.New(rand.NewSource(17))
		for i := 0; i < 500; i++ {
			level := uint8(3 + r.Intn(6))
			align := uint32(1)<<(morton.MaxDepth-level) - 1
			a := mustEncode(t,
				uint32(r.Intn(morton.GridSize))&^align,
				uint32(r.Intn(morton.GridSize))&^align,
				uint32(r.Intn(morton.GridSize))&^align,
				level)
			b := mustEncode(t,
				uint32(r.Intn(morton.GridSize))&^align,
				uint32(r.Intn(morton.GridSize))&^align,
				uint32(r.Intn(morton.GridSize))&^align,
				level)
			if b < a {
				a, b = b, a
			}
			if a == b {
				continue
			}

			region, err := CompleteRegion(a, b)
			test.That(t, err, test.ShouldBeNil)

			// The region plus its bounds tiles the volume from a's corner to
			// b's far corner exactly.
			var cells uint64
			for j, k := range region {
				test.That(t, a < k, test.ShouldBeTrue)
				test.That(t, k < b, test.ShouldBeTrue)
				test.That(t, k.AncestorOf(a) || k.AncestorOf(b), test.ShouldBeFalse)
				if j+1 < len(region) {
					test.That(t, k.AncestorOf(region[j+1]), test.ShouldBeFalse)
					test.That(t, k.LastDescendant(morton.MaxDepth) < region[j+1], test.ShouldBeTrue)
				}
				cells += cellVolume(k)
			}
			want := spanVolume(t, a, b) - cellVolume(a) - cellVolume(b)
			test.That(t, cells, test.ShouldEqual, want)
		}
	})
}

// spanVolume counts the finest-grid cells from a's first cell through b's
// last cell along the space filling curve.
func spanVolume(t *testing.T, a, b morton.Key) uint64 {
	t.Helper()
	first := a.FirstDescendant(morton.MaxDepth).Code()
	last := b.LastDescendant(morton.MaxDepth).Code()
	return last - first + 1
}
