package model

import "testing"

func TestMergeIntoZeroRuleSet(t *testing.T) {
	other := NewRuleSet()
	other.Behaviors[Proxy] = "SOCKS5 127.0.0.1:1080"
	other.Domains["google"] = Proxy
	other.IPv4 = []IPv4Rule{{Network: 0x7F000000, Prefix: 8, Action: Direct}}

	var rs RuleSet
	rs.Merge(other)

	if rs.Behaviors[Proxy] != "SOCKS5 127.0.0.1:1080" {
		t.Errorf("Expected merged behavior, got %#v", rs.Behaviors)
	}
	if rs.Domains["google"] != Proxy {
		t.Errorf("Expected merged domain, got %#v", rs.Domains)
	}
	if len(rs.IPv4) != 1 {
		t.Errorf("Expected 1 IPv4 rule, got %d", len(rs.IPv4))
	}
}

func TestMergeReplacesSameKeys(t *testing.T) {
	rs := NewRuleSet()
	rs.Domains["google"] = Proxy
	rs.Behaviors[Blocked] = "PROXY 0.0.0.0:0"

	other := NewRuleSet()
	other.Domains["google"] = Direct
	other.Behaviors[Blocked] = "PROXY 127.0.0.1:9"
	rs.Merge(other)
	rs.Merge(nil)

	if rs.Domains["google"] != Direct {
		t.Errorf("Expected later domain rule to win, got %s", rs.Domains["google"])
	}
	if rs.Behaviors[Blocked] != "PROXY 127.0.0.1:9" {
		t.Errorf("Expected later behavior to win, got %s", rs.Behaviors[Blocked])
	}
}
