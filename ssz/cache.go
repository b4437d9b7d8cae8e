package ssz

// Cache is an incremental merkle root cache for one composite value. It
// retains every computed internal node of the chunk tree; after a mutation
// only the paths above dirtied leaves are rehashed. Copying a composite
// forks its cache, so mutations on either side stay independent.
type Cache struct {
	limit  uint64 // merkleization chunk bound (fixed per schema)
	mixLen bool   // lists mix their length into the final root
	depth  int

	n     int            // current leaf count
	nodes []map[int]Root // nodes[level][index]; level 0 holds leaf roots
	dirty map[int]struct{}

	treeRoot  Root
	treeValid bool

	mixedRoot  Root
	mixedLen   uint64
	mixedValid bool
}

// NewCache creates a cache for a composite whose chunk tree is bounded by
// limit. Lists set mixLen so the element count is folded into the root.
func NewCache(limit uint64, mixLen bool) *Cache {
	depth := depthOf(nextPowerOfTwo(limit))
	nodes := make([]map[int]Root, depth+1)
	for i := range nodes {
		nodes[i] = make(map[int]Root)
	}
	return &Cache{
		limit:  limit,
		mixLen: mixLen,
		depth:  depth,
		nodes:  nodes,
		dirty:  make(map[int]struct{}),
	}
}

// Len returns the current leaf count.
func (c *Cache) Len() int { return c.n }

// Resize sets the leaf count. Grown indices are marked dirty; shrinking
// drops the whole tree since stale right-hand nodes would poison parents.
func (c *Cache) Resize(n int) {
	if n < c.n {
		for i := range c.nodes {
			c.nodes[i] = make(map[int]Root)
		}
		c.dirty = make(map[int]struct{})
		for i := 0; i < n; i++ {
			c.dirty[i] = struct{}{}
		}
		c.n = n
		c.treeValid = false
		c.mixedValid = false
		return
	}
	for i := c.n; i < n; i++ {
		c.dirty[i] = struct{}{}
	}
	if n != c.n {
		c.treeValid = false
		c.mixedValid = false
	}
	c.n = n
}

// Invalidate marks leaf i dirty. The leaf root is recomputed on the next
// Root call.
func (c *Cache) Invalidate(i int) {
	if i >= c.n {
		c.Resize(i + 1)
		return
	}
	c.dirty[i] = struct{}{}
	c.treeValid = false
	c.mixedValid = false
}

// InvalidateAll drops every cached node.
func (c *Cache) InvalidateAll() {
	n := c.n
	for i := range c.nodes {
		c.nodes[i] = make(map[int]Root)
	}
	c.dirty = make(map[int]struct{})
	for i := 0; i < n; i++ {
		c.dirty[i] = struct{}{}
	}
	c.treeValid = false
	c.mixedValid = false
}

// Root returns the cached root, recomputing only the subtrees above dirty
// leaves. leaf is invoked once per dirty index to produce the fresh leaf
// root. With no dirty leaves the call performs zero hash invocations. For
// mixLen caches the leaf count is mixed in; packed collections whose
// element count differs from the chunk count use RootMix instead.
func (c *Cache) Root(h *Hasher, leaf func(i int) Root) Root {
	if !c.mixLen {
		return c.tree(h, leaf)
	}
	return c.RootMix(h, leaf, uint64(c.n))
}

// RootMix returns the tree root with an explicit length mixed in.
func (c *Cache) RootMix(h *Hasher, leaf func(i int) Root, length uint64) Root {
	if c.mixedValid && c.treeValid && len(c.dirty) == 0 && c.mixedLen == length {
		return c.mixedRoot
	}
	root := h.mixInLength(c.tree(h, leaf), length)
	c.mixedRoot = root
	c.mixedLen = length
	c.mixedValid = true
	return root
}

// tree returns the pre-mix merkle root over the current leaves.
func (c *Cache) tree(h *Hasher, leaf func(i int) Root) Root {
	if c.treeValid && len(c.dirty) == 0 {
		return c.treeRoot
	}

	level := make([]int, 0, len(c.dirty))
	for i := range c.dirty {
		c.nodes[0][i] = leaf(i)
		level = append(level, i)
	}
	c.dirty = make(map[int]struct{})

	for d := 0; d < c.depth; d++ {
		parents := make(map[int]struct{}, len(level))
		for _, i := range level {
			parents[i>>1] = struct{}{}
		}
		for p := range parents {
			left := c.node(d, p*2)
			right := c.node(d, p*2+1)
			c.nodes[d+1][p] = h.hashPair(left, right)
		}
		level = level[:0]
		for p := range parents {
			level = append(level, p)
		}
	}

	c.treeRoot = c.node(c.depth, 0)
	c.treeValid = true
	return c.treeRoot
}

// node returns a cached node or the zero subtree hash for absent positions.
func (c *Cache) node(level, index int) Root {
	if r, ok := c.nodes[level][index]; ok {
		return r
	}
	return zeroHashes[level]
}

// Fork returns an independent copy sharing no mutable structure. The copy
// starts from the same final root with the parent's dirty set duplicated.
func (c *Cache) Fork() *Cache {
	nodes := make([]map[int]Root, len(c.nodes))
	for i, m := range c.nodes {
		nm := make(map[int]Root, len(m))
		for k, v := range m {
			nm[k] = v
		}
		nodes[i] = nm
	}
	dirty := make(map[int]struct{}, len(c.dirty))
	for k := range c.dirty {
		dirty[k] = struct{}{}
	}
	return &Cache{
		limit:      c.limit,
		mixLen:     c.mixLen,
		depth:      c.depth,
		n:          c.n,
		nodes:      nodes,
		dirty:      dirty,
		treeRoot:   c.treeRoot,
		treeValid:  c.treeValid,
		mixedRoot:  c.mixedRoot,
		mixedLen:   c.mixedLen,
		mixedValid: c.mixedValid,
	}
}
