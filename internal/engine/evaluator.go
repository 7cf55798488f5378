package engine

import (
	"fmt"
	"strings"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// HostResolver resolves a host name to a single address literal.
type HostResolver interface {
	Resolve(host string) (string, bool)
}

// MultiHostResolver returns every address of a host. The evaluator prefers it
// over Resolve when a resolver implements both.
type MultiHostResolver interface {
	HostResolver
	ResolveEx(host string) ([]string, bool)
}

// Evaluator decides the directive for a host. It is safe for concurrent use.
type Evaluator struct {
	networks  *NetworkTable
	domains   *DomainTable
	behaviors *Behaviors
	resolver  HostResolver
}

type Option func(*Evaluator)

// WithResolver enables the DNS fallback stage.
func WithResolver(r HostResolver) Option {
	return func(e *Evaluator) {
		e.resolver = r
	}
}

// NewEvaluator builds all lookup tables from rules.
func NewEvaluator(rules *model.RuleSet, opts ...Option) (*Evaluator, error) {
	if rules == nil {
		rules = model.NewRuleSet()
	}
	domains, err := NewDomainTable(rules.Domains, rules.Overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to build domain table: %w", err)
	}
	defaultProxy := rules.DefaultProxy
	if defaultProxy == "" {
		defaultProxy = model.Proxy
	}
	evaluator := &Evaluator{
		networks:  NewNetworkTable(rules.IPv4, rules.IPv6),
		domains:   domains,
		behaviors: NewBehaviors(rules.Behaviors, defaultProxy),
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// FindProxyForURL returns the directive for host. url is accepted for
// parity with PAC callers and otherwise ignored.
func (e *Evaluator) FindProxyForURL(url, host string) string {
	return e.Evaluate(host).Directive
}

// Evaluate runs the lookup pipeline:
//  1. IP literals: network rules, then an exact rule keyed by the literal,
//     then the default directive.
//  2. Names: overrides and the domain suffix walk.
//  3. DNS fallback, re-running the network rules on the resolved address.
//  4. The default directive.
func (e *Evaluator) Evaluate(host string) model.Decision {
	decision := model.Decision{
		Host:      host,
		Directive: e.behaviors.Default(),
		Stage:     model.StageDefault,
	}

	if utils.IsIPLiteral(host) {
		if m, ok := e.networks.Match(host); ok {
			return e.decide(decision, m.Action, model.StageNetwork, m.Network)
		}
		if action, ok := e.domains.Lookup(host); ok {
			return e.decide(decision, action, model.StageIPKey, host)
		}
		return decision
	}

	if m, ok := e.domains.Explain(host); ok {
		stage := model.StageDomain
		if m.Override {
			stage = model.StageOverride
		}
		return e.decide(decision, m.Action, stage, m.Key)
	}

	if ip, ok := e.resolve(host); ok {
		decision.ResolvedIP = ip
		if m, ok := e.networks.Match(ip); ok {
			return e.decide(decision, m.Action, model.StageResolved, m.Network)
		}
	}
	return decision
}

func (e *Evaluator) decide(d model.Decision, action model.Action, stage model.Stage, rule string) model.Decision {
	d.Directive = e.behaviors.Resolve(action)
	d.Action = action
	d.Stage = stage
	d.Rule = rule
	return d
}

func (e *Evaluator) resolve(host string) (string, bool) {
	if e.resolver == nil {
		return "", false
	}
	if multi, ok := e.resolver.(MultiHostResolver); ok {
		addrs, ok := multi.ResolveEx(host)
		if !ok {
			return "", false
		}
		for _, addr := range addrs {
			if addr = strings.TrimSpace(addr); addr != "" {
				return addr, true
			}
		}
		return "", false
	}
	ip, ok := e.resolver.Resolve(host)
	if !ok || ip == "" {
		return "", false
	}
	return ip, true
}

// MatchNetwork reports the network covering ip, e.g. "127.0.0.0/8".
func (e *Evaluator) MatchNetwork(ip string) (NetworkMatch, bool) {
	return e.networks.Match(ip)
}

func (e *Evaluator) Behaviors() *Behaviors {
	return e.behaviors
}

// Stats summarises table sizes for logging.
type Stats struct {
	IPv4Networks int `json:"ipv4_networks"`
	IPv6Networks int `json:"ipv6_networks"`
	Domains      int `json:"domains"`
	Overrides    int `json:"overrides"`
}

func (e *Evaluator) Stats() Stats {
	var s Stats
	s.IPv4Networks, s.IPv6Networks = e.networks.Len()
	s.Domains, s.Overrides = e.domains.Len()
	return s
}
