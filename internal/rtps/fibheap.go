package rtps

// FibNode is a single node in a FibHeap, carrying a value of type T and the
// int64 key the heap orders on (the lease heap keys on scheduled time).
type FibNode[T any] struct {
	key                 int64
	value               T
	degree              int
	marked              bool
	parent, child       *FibNode[T]
	left, right         *FibNode[T]
	onHeap              bool
}

// Value returns the payload stored at this node.
func (n *FibNode[T]) Value() T { return n.value }

// Key returns the node's current ordering key.
func (n *FibNode[T]) Key() int64 { return n.key }

// FibHeap is a classic fibonacci heap: amortized O(1) Insert and
// DecreaseKey, amortized O(log n) ExtractMin. Used by the lease manager to
// track scheduled expirations.
type FibHeap[T any] struct {
	min   *FibNode[T]
	count int
}

// NewFibHeap constructs an empty heap.
func NewFibHeap[T any]() *FibHeap[T] {
	return &FibHeap[T]{}
}

// Len returns the number of nodes currently on the heap.
func (h *FibHeap[T]) Len() int { return h.count }

// Min returns the node with the smallest key, or nil if the heap is empty.
func (h *FibHeap[T]) Min() *FibNode[T] { return h.min }

// Insert adds value under key and returns the node handle, which the caller
// must retain to later call DecreaseKey or Delete.
func (h *FibHeap[T]) Insert(key int64, value T) *FibNode[T] {
	n := &FibNode[T]{key: key, value: value, onHeap: true}
	n.left, n.right = n, n
	h.min = mergeLists(h.min, n)
	h.count++
	return n
}

// ExtractMin removes and returns the minimum node, or nil if empty.
func (h *FibHeap[T]) ExtractMin() *FibNode[T] {
	z := h.min
	if z == nil {
		return nil
	}
	if z.child != nil {
		c := z.child
		for {
			next := c.right
			c.parent = nil
			c = next
			if c == z.child {
				break
			}
		}
		h.min = mergeLists(h.min, z.child)
	}
	removeFromList(z)
	if z == z.right {
		h.min = nil
	} else {
		h.min = z.right
		h.consolidate()
	}
	h.count--
	z.onHeap = false
	z.left, z.right, z.parent, z.child = nil, nil, nil, nil
	return z
}

// DecreaseKey lowers n's key. It does nothing if newKey is greater than the
// current key or n is no longer on the heap.
func (h *FibHeap[T]) DecreaseKey(n *FibNode[T], newKey int64) {
	if newKey > n.key || !n.onHeap {
		return
	}
	n.key = newKey
	p := n.parent
	if p != nil && n.key < p.key {
		h.cut(n, p)
		h.cascadingCut(p)
	}
	if h.min == nil || n.key < h.min.key {
		h.min = n
	}
}

// Delete removes n from the heap regardless of its current key.
func (h *FibHeap[T]) Delete(n *FibNode[T]) {
	if !n.onHeap {
		return
	}
	h.DecreaseKey(n, minInt64)
	h.ExtractMin()
}

const minInt64 = -1 << 63

func mergeLists[T any](a, b *FibNode[T]) *FibNode[T] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	aRight, bLeft := a.right, b.left
	a.right, b.left = b, a
	bLeft.right, aRight.left = aRight, bLeft
	if b.key < a.key {
		return b
	}
	return a
}

func removeFromList[T any](n *FibNode[T]) {
	n.left.right = n.right
	n.right.left = n.left
}

func (h *FibHeap[T]) cut(n, p *FibNode[T]) {
	if p.child == n {
		if n.right == n {
			p.child = nil
		} else {
			p.child = n.right
		}
	}
	removeFromList(n)
	p.degree--
	n.left, n.right = n, n
	n.parent = nil
	n.marked = false
	h.min = mergeLists(h.min, n)
}

func (h *FibHeap[T]) cascadingCut(n *FibNode[T]) {
	p := n.parent
	if p == nil {
		return
	}
	if !n.marked {
		n.marked = true
		return
	}
	h.cut(n, p)
	h.cascadingCut(p)
}

func (h *FibHeap[T]) consolidate() {
	// degree table sized generously; fibonacci heaps of practical size
	// (leases, retransmit schedules) never approach 2^64 nodes.
	const maxDegree = 64
	table := make([]*FibNode[T], maxDegree)

	roots := make([]*FibNode[T], 0, h.count)
	if h.min != nil {
		x := h.min
		for {
			roots = append(roots, x)
			x = x.right
			if x == h.min {
				break
			}
		}
	}

	for _, x := range roots {
		d := x.degree
		for table[d] != nil {
			y := table[d]
			if y == x {
				break
			}
			if x.key > y.key {
				x, y = y, x
			}
			h.link(y, x)
			table[d] = nil
			d++
		}
		table[d] = x
	}

	h.min = nil
	for _, n := range table {
		if n == nil {
			continue
		}
		n.left, n.right = n, n
		h.min = mergeLists(h.min, n)
	}
}

func (h *FibHeap[T]) link(y, x *FibNode[T]) {
	removeFromList(y)
	y.left, y.right = y, y
	x.child = mergeLists(x.child, y)
	y.parent = x
	x.degree++
	y.marked = false
}
