package trie

import (
	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// IPv4 is a prefix trie over 32-bit addresses.
type IPv4 struct {
	root *node[model.IPv4Rule]
	size int
}

func NewIPv4() *IPv4 {
	return &IPv4{root: &node[model.IPv4Rule]{}}
}

// BuildIPv4 returns a trie holding all rules. Insertion order only matters
// for rules with an identical prefix, where the later one wins.
func BuildIPv4(rules []model.IPv4Rule) *IPv4 {
	t := NewIPv4()
	for _, rule := range rules {
		t.Insert(rule)
	}
	return t
}

// Insert adds rule. Prefixes outside 0..32 are clamped.
func (t *IPv4) Insert(rule model.IPv4Rule) {
	rule.Prefix = clamp(rule.Prefix, 32)
	rule.Network = utils.MaskIPv4(rule.Network, rule.Prefix)

	n := insertBits(t.root, uint64(rule.Network)<<32, rule.Prefix)
	if !n.isEnd {
		t.size++
	}
	n.isEnd = true
	n.rule = rule
}

// Lookup returns the most specific rule covering ip.
func (t *IPv4) Lookup(ip uint32) (model.IPv4Rule, bool) {
	var last *node[model.IPv4Rule]
	record := func(n *node[model.IPv4Rule]) {
		if n.isEnd {
			last = n
		}
	}
	record(t.root)
	searchBits(t.root, uint64(ip)<<32, 32, record)
	if last == nil {
		return model.IPv4Rule{}, false
	}
	return last.rule, true
}

// Len returns the number of distinct prefixes stored.
func (t *IPv4) Len() int {
	return t.size
}

func clamp(prefix, width int) int {
	if prefix < 0 {
		return 0
	}
	if prefix > width {
		return width
	}
	return prefix
}
