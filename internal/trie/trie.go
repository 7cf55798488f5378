// Package trie implements binary prefix tries for longest-prefix matching of
// IPv4 and IPv6 networks. Tries are built once and only read afterwards, so
// concurrent lookups need no locking.
package trie

const topBit = uint64(1) << 63

type node[R any] struct {
	children [2]*node[R]
	isEnd    bool
	rule     R
}

// insertBits walks the most significant bits of value, creating nodes on
// demand, and returns the node reached after the last bit.
func insertBits[R any](n *node[R], value uint64, bits int) *node[R] {
	mask := topBit
	for i := 0; i < bits; i++ {
		bit := 0
		if value&mask != 0 {
			bit = 1
		}
		mask >>= 1
		if n.children[bit] == nil {
			n.children[bit] = &node[R]{}
		}
		n = n.children[bit]
	}
	return n
}

// searchBits follows value for up to bits steps and calls visit on every
// node entered. It returns nil as soon as a child is missing.
func searchBits[R any](n *node[R], value uint64, bits int, visit func(*node[R])) *node[R] {
	mask := topBit
	for i := 0; i < bits; i++ {
		bit := 0
		if value&mask != 0 {
			bit = 1
		}
		mask >>= 1
		if n.children[bit] == nil {
			return nil
		}
		n = n.children[bit]
		visit(n)
	}
	return n
}
