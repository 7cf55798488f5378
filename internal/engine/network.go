package engine

import (
	"strings"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/trie"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// NetworkMatch describes the rule that covered an address.
type NetworkMatch struct {
	Action  model.Action
	Network string // canonical network/prefix
	Comment string
}

// NetworkTable classifies IP literals by longest-prefix match.
type NetworkTable struct {
	v4 *trie.IPv4
	v6 *trie.IPv6
}

func NewNetworkTable(v4 []model.IPv4Rule, v6 []model.IPv6Rule) *NetworkTable {
	return &NetworkTable{
		v4: trie.BuildIPv4(v4),
		v6: trie.BuildIPv6(v6),
	}
}

// Classify returns the action of the most specific network covering ip.
// Malformed literals never match.
func (t *NetworkTable) Classify(ip string) (model.Action, bool) {
	m, ok := t.Match(ip)
	return m.Action, ok
}

// Match is Classify with the matched network attached. A '.' anywhere in ip
// selects IPv4, otherwise the text is read as IPv6.
func (t *NetworkTable) Match(ip string) (NetworkMatch, bool) {
	if strings.Contains(ip, ".") {
		value, err := utils.ParseIPv4(ip)
		if err != nil {
			return NetworkMatch{}, false
		}
		rule, ok := t.v4.Lookup(value)
		if !ok {
			return NetworkMatch{}, false
		}
		return NetworkMatch{Action: rule.Action, Network: utils.IPv4RuleString(rule), Comment: rule.Comment}, true
	}

	high, low, err := utils.ParseIPv6(ip)
	if err != nil {
		return NetworkMatch{}, false
	}
	rule, ok := t.v6.Lookup(high, low)
	if !ok {
		return NetworkMatch{}, false
	}
	return NetworkMatch{Action: rule.Action, Network: utils.IPv6RuleString(rule), Comment: rule.Comment}, true
}

// Len returns the number of IPv4 and IPv6 prefixes.
func (t *NetworkTable) Len() (int, int) {
	return t.v4.Len(), t.v6.Len()
}
