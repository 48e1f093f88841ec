package morton

// Neighbor returns the octant at the given level that touches k's octant in
// the direction (dx, dy, dz), each component in {-1, 0, 1}. The second return
// is false when the neighbor falls outside the domain.
func (k Key) Neighbor(dx, dy, dz int, level uint8) (Key, bool) {
	a := k.Anchor()
	side := int64(k.SideLength())

	nx, ok := offsetCoord(int64(a.X), dx, side)
	if !ok {
		return 0, false
	}
	ny, ok := offsetCoord(int64(a.Y), dy, side)
	if !ok {
		return 0, false
	}
	nz, ok := offsetCoord(int64(a.Z), dz, side)
	if !ok {
		return 0, false
	}

	// Truncate the neighboring cell to the requested level's grid.
	align := int64(1)<<(MaxDepth-level) - 1
	n, err := Encode(Anchor{
		X: uint32(nx &^ align),
		Y: uint32(ny &^ align),
		Z: uint32(nz &^ align),
	}, level)
	if err != nil {
		panic(err)
	}
	return n, true
}

// Neighbors returns the distinct octants at the given level adjacent to k's
// octant across all 26 face, edge and vertex directions, excluding any that
// contain k itself.
func (k Key) Neighbors(level uint8) []Key {
	neighbors := make([]Key, 0, 26)
	seen := make(map[Key]struct{}, 26)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				n, ok := k.Neighbor(dx, dy, dz, level)
				if !ok || n.AncestorOf(k) {
					continue
				}
				if _, dup := seen[n]; dup {
					continue
				}
				seen[n] = struct{}{}
				neighbors = append(neighbors, n)
			}
		}
	}
	return neighbors
}

func offsetCoord(c int64, d int, side int64) (int64, bool) {
	n := c + int64(d)*side
	if n < 0 || n >= GridSize {
		return 0, false
	}
	return n, true
}
