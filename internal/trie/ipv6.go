package trie

import (
	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// IPv6 is a prefix trie over 128-bit addresses given as two 64-bit halves.
// The high half is walked first; the low half continues from the node the
// high walk ended on.
type IPv6 struct {
	root *node[model.IPv6Rule]
	size int
}

func NewIPv6() *IPv6 {
	return &IPv6{root: &node[model.IPv6Rule]{}}
}

func BuildIPv6(rules []model.IPv6Rule) *IPv6 {
	t := NewIPv6()
	for _, rule := range rules {
		t.Insert(rule)
	}
	return t
}

func (t *IPv6) Insert(rule model.IPv6Rule) {
	rule.Prefix = clamp(rule.Prefix, 128)
	rule.High, rule.Low = utils.MaskIPv6(rule.High, rule.Low, rule.Prefix)

	n := insertBits(t.root, rule.High, min(rule.Prefix, 64))
	if rule.Prefix > 64 {
		n = insertBits(n, rule.Low, rule.Prefix-64)
	}
	if !n.isEnd {
		t.size++
	}
	n.isEnd = true
	n.rule = rule
}

// Lookup returns the most specific rule covering high:low.
func (t *IPv6) Lookup(high, low uint64) (model.IPv6Rule, bool) {
	var last *node[model.IPv6Rule]
	record := func(n *node[model.IPv6Rule]) {
		if n.isEnd {
			last = n
		}
	}
	record(t.root)
	if n := searchBits(t.root, high, 64, record); n != nil {
		searchBits(n, low, 64, record)
	}
	if last == nil {
		return model.IPv6Rule{}, false
	}
	return last.rule, true
}

func (t *IPv6) Len() int {
	return t.size
}
