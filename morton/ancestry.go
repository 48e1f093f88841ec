package morton

// Parent returns the key one level coarser whose octant contains k.
// Calling Parent on the root is a programming error.
func (k Key) Parent() Key {
	level := k.Level()
	if level == 0 {
		panic("morton: root octant has no parent")
	}
	shift := uint(3 * (MaxDepth - level + 1))
	return fromCode(k.code()>>shift<<shift, level-1)
}

// Children returns the eight keys one level finer that cover k's octant
// exactly, in ascending key order. Calling Children at MaxDepth is a
// programming error.
func (k Key) Children() []Key {
	level := k.Level()
	if level == MaxDepth {
		panic("morton: octant at maximum depth has no children")
	}
	shift := uint(3 * (MaxDepth - level - 1))
	code := k.code()
	children := make([]Key, 8)
	for i := uint64(0); i < 8; i++ {
		children[i] = fromCode(code|i<<shift, level+1)
	}
	return children
}

// Siblings returns the eight children of k's parent, k included, in
// ascending key order.
func (k Key) Siblings() []Key {
	return k.Parent().Children()
}

// AncestorOf reports whether k's octant spatially contains other's octant at
// a coarser or equal level. Every key is an ancestor of itself.
func (k Key) AncestorOf(other Key) bool {
	level := k.Level()
	if level > other.Level() {
		return false
	}
	shift := uint(3 * (MaxDepth - level))
	return k.code()>>shift == other.code()>>shift
}

// StrictAncestorOf reports whether k contains other and sits at a strictly
// coarser level.
func (k Key) StrictAncestorOf(other Key) bool {
	return k != other && k.AncestorOf(other)
}

// Ancestors returns every strict ancestor of k, from parent up to the root.
func (k Key) Ancestors() []Key {
	ancestors := make([]Key, 0, k.Level())
	for cur := k; cur.Level() > 0; {
		cur = cur.Parent()
		ancestors = append(ancestors, cur)
	}
	return ancestors
}

// FinestCommonAncestor returns the deepest key whose octant contains both a
// and b.
func FinestCommonAncestor(a, b Key) Key {
	level := min(a.Level(), b.Level())
	for {
		shift := uint(3 * (MaxDepth - level))
		if a.code()>>shift == b.code()>>shift {
			return fromCode(a.code()>>shift<<shift, level)
		}
		level--
	}
}

// FirstDescendant returns the descendant of k at the given level whose
// octant shares k's lower corner.
func (k Key) FirstDescendant(level uint8) Key {
	if level < k.Level() || level > MaxDepth {
		panic("morton: descendant level out of range")
	}
	return fromCode(k.code(), level)
}

// LastDescendant returns the descendant of k at the given level whose octant
// touches k's upper corner.
func (k Key) LastDescendant(level uint8) Key {
	if level < k.Level() || level > MaxDepth {
		panic("morton: descendant level out of range")
	}
	fill := uint64(1)<<(3*(MaxDepth-k.Level())) - 1
	fill &^= uint64(1)<<(3*(MaxDepth-level)) - 1
	return fromCode(k.code()|fill, level)
}
