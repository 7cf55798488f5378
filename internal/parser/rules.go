package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// ruleFile is the YAML layout of a rule set:
//
//	default_proxy: proxy
//	behaviors:
//	  proxy: SOCKS5 127.0.0.1:1080
//	networks:
//	  - network: 10.0.0.0/8
//	    action: direct
//	domains:
//	  google: proxy
//	overrides:
//	  - kind: regexp
//	    pattern: ^adservice\.google\.
//	    action: blocked
type ruleFile struct {
	DefaultProxy string            `yaml:"default_proxy"`
	Behaviors    map[string]string `yaml:"behaviors"`
	Networks     []networkEntry    `yaml:"networks"`
	Domains      map[string]string `yaml:"domains"`
	Overrides    []overrideEntry   `yaml:"overrides"`
}

type networkEntry struct {
	Network string `yaml:"network"`
	Action  string `yaml:"action"`
	Comment string `yaml:"comment"`
}

type overrideEntry struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Action  string `yaml:"action"`
}

// ParseRuleSet decodes a YAML rule document. Unknown keys are rejected.
// Invalid entries are skipped and reported together; the returned rule set
// holds everything else.
func ParseRuleSet(r io.Reader) (*model.RuleSet, error) {
	var doc ruleFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode rule file: %w", err)
	}

	rules := model.NewRuleSet()
	if doc.DefaultProxy != "" {
		rules.DefaultProxy = model.Action(doc.DefaultProxy)
	}
	for action, directive := range doc.Behaviors {
		rules.Behaviors[model.Action(action)] = directive
	}

	var errs *multierror.Error
	for i, n := range doc.Networks {
		if n.Action == "" {
			errs = multierror.Append(errs, fmt.Errorf("networks[%d]: %w: missing action", i, ErrInvalidEntry))
			continue
		}
		v4, v6, err := utils.ParseCIDR(n.Network, model.Action(n.Action))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("networks[%d]: %w: %v", i, ErrInvalidEntry, err))
			continue
		}
		if v4 != nil {
			v4.Comment = n.Comment
			rules.IPv4 = append(rules.IPv4, *v4)
		} else {
			v6.Comment = n.Comment
			rules.IPv6 = append(rules.IPv6, *v6)
		}
	}

	for domain, action := range doc.Domains {
		if domain == "" || action == "" {
			errs = multierror.Append(errs, fmt.Errorf("domains[%q]: %w: empty key or action", domain, ErrInvalidEntry))
			continue
		}
		rules.Domains[domain] = model.Action(action)
	}

	for i, o := range doc.Overrides {
		kind := model.OverrideKind(o.Kind)
		if kind == "" {
			kind = model.OverrideRegexp
		}
		if kind != model.OverrideRegexp && kind != model.OverrideGlob {
			errs = multierror.Append(errs, fmt.Errorf("overrides[%d]: %w: unknown kind %q", i, ErrInvalidEntry, o.Kind))
			continue
		}
		if o.Pattern == "" || o.Action == "" {
			errs = multierror.Append(errs, fmt.Errorf("overrides[%d]: %w: empty pattern or action", i, ErrInvalidEntry))
			continue
		}
		rules.Overrides = append(rules.Overrides, model.OverrideRule{Kind: kind, Pattern: o.Pattern, Action: model.Action(o.Action)})
	}

	return rules, errs.ErrorOrNil()
}
