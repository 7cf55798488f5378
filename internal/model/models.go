package model

// Action is an abstract routing decision. Besides the well-known values any
// other label names a custom proxy configured in the behavior table.
type Action string

const (
	Direct  Action = "direct"
	Blocked Action = "blocked"
	Proxy   Action = "proxy"
)

// DirectDirective is the directive telling the client to connect without a proxy.
const DirectDirective = "DIRECT"

type OverrideKind string // "regexp", "glob"

const (
	OverrideRegexp OverrideKind = "regexp"
	OverrideGlob   OverrideKind = "glob"
)

// IPv4Rule maps a network to an action. Only the top Prefix bits of Network
// are significant.
type IPv4Rule struct {
	Network uint32
	Prefix  int
	Action  Action
	Comment string
}

// IPv6Rule is the 128-bit counterpart of IPv4Rule, split into two halves.
type IPv6Rule struct {
	High    uint64
	Low     uint64
	Prefix  int
	Action  Action
	Comment string
}

type OverrideRule struct {
	Kind    OverrideKind
	Pattern string
	Action  Action
}

// RuleSet is the static data an engine is built from.
type RuleSet struct {
	Behaviors    map[Action]string
	DefaultProxy Action
	IPv4         []IPv4Rule
	IPv6         []IPv6Rule
	Domains      map[string]Action
	Overrides    []OverrideRule
}

// NewRuleSet returns an empty rule set using proxy as the default proxy action.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		Behaviors:    make(map[Action]string),
		DefaultProxy: Proxy,
		Domains:      make(map[string]Action),
	}
}

// Merge appends the rules of other. Behaviors and domains from other replace
// existing entries with the same key. A zero RuleSet is a valid receiver.
func (rs *RuleSet) Merge(other *RuleSet) {
	if other == nil {
		return
	}
	if rs.Behaviors == nil {
		rs.Behaviors = make(map[Action]string, len(other.Behaviors))
	}
	if rs.Domains == nil {
		rs.Domains = make(map[string]Action, len(other.Domains))
	}
	for action, directive := range other.Behaviors {
		rs.Behaviors[action] = directive
	}
	for domain, action := range other.Domains {
		rs.Domains[domain] = action
	}
	rs.IPv4 = append(rs.IPv4, other.IPv4...)
	rs.IPv6 = append(rs.IPv6, other.IPv6...)
	rs.Overrides = append(rs.Overrides, other.Overrides...)
}

type Stage string

const (
	StageNetwork  Stage = "NETWORK"
	StageIPKey    Stage = "IP_KEY"
	StageOverride Stage = "OVERRIDE"
	StageDomain   Stage = "DOMAIN"
	StageResolved Stage = "RESOLVED_NETWORK"
	StageDefault  Stage = "DEFAULT"
)

type Decision struct {
	Host       string
	Directive  string
	Action     Action // empty when no rule matched
	Stage      Stage
	Rule       string // matched network, domain key or pattern
	ResolvedIP string
}

type CheckKind string

const (
	CheckNetwork   CheckKind = "network"
	CheckDirective CheckKind = "directive"
)

// CheckCase is one self-test expectation. For network checks Expected is the
// covering "net/prefix" or empty for no match.
type CheckCase struct {
	Kind     CheckKind
	Input    string
	Expected string
}
