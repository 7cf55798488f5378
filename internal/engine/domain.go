package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/chaifeng/proxy.pac/internal/model"
)

type hostMatcher interface {
	Match(host string) bool
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(host string) bool {
	return m.re.MatchString(host)
}

type override struct {
	rule    model.OverrideRule
	matcher hostMatcher
}

// DomainMatch describes which domain rule fired.
type DomainMatch struct {
	Action   model.Action
	Key      string // domain key or override pattern
	Override bool
}

// DomainTable classifies host names by ordered overrides and a label-wise
// suffix walk over exact domain keys.
type DomainTable struct {
	domains   map[string]model.Action
	overrides []override
}

// NewDomainTable compiles the override patterns. Glob patterns use '.' as
// separator: "*" stays within one label, "**" spans labels.
func NewDomainTable(domains map[string]model.Action, overrides []model.OverrideRule) (*DomainTable, error) {
	t := &DomainTable{
		domains:   make(map[string]model.Action, len(domains)),
		overrides: make([]override, 0, len(overrides)),
	}
	for domain, action := range domains {
		t.domains[domain] = action
	}
	for i, rule := range overrides {
		matcher, err := compileOverride(rule)
		if err != nil {
			return nil, fmt.Errorf("override %d (%s %q): %w", i, rule.Kind, rule.Pattern, err)
		}
		t.overrides = append(t.overrides, override{rule: rule, matcher: matcher})
	}
	return t, nil
}

func compileOverride(rule model.OverrideRule) (hostMatcher, error) {
	switch rule.Kind {
	case model.OverrideRegexp, "":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		return regexpMatcher{re: re}, nil
	case model.OverrideGlob:
		g, err := glob.Compile(rule.Pattern, '.')
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown override kind %q", rule.Kind)
	}
}

// Classify checks the overrides in order, then walks host from the full name
// towards its last label. "a.b.google" tries "a.b.google", "b.google" and
// "google"; it never matches a key that is only a substring of a label.
func (t *DomainTable) Classify(host string) (model.Action, bool) {
	m, ok := t.Explain(host)
	return m.Action, ok
}

func (t *DomainTable) Explain(host string) (DomainMatch, bool) {
	for _, o := range t.overrides {
		if o.matcher.Match(host) {
			return DomainMatch{Action: o.rule.Action, Key: o.rule.Pattern, Override: true}, true
		}
	}

	segment := host
	for {
		if action, ok := t.domains[segment]; ok {
			return DomainMatch{Action: action, Key: segment}, true
		}
		dot := strings.IndexByte(segment, '.')
		if dot == -1 {
			return DomainMatch{}, false
		}
		segment = segment[dot+1:]
	}
}

// Lookup matches key exactly, without overrides or suffix walking.
func (t *DomainTable) Lookup(key string) (model.Action, bool) {
	action, ok := t.domains[key]
	return action, ok
}

func (t *DomainTable) Len() (domains, overrides int) {
	return len(t.domains), len(t.overrides)
}
