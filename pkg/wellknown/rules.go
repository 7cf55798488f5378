package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strings"

	_ "embed"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

//go:embed reserved_networks.csv
var reservedNetworksData string

//go:embed behaviors.csv
var behaviorsData string

//go:embed domain_rules.csv
var domainRulesData string

var (
	reservedIPv4 []model.IPv4Rule
	reservedIPv6 []model.IPv6Rule
	behaviors    map[model.Action]string
	domains      map[string]model.Action
	overrides    []model.OverrideRule
)

func init() {
	for _, record := range readEmbedded("reserved_networks.csv", reservedNetworksData, 3) {
		v4, v6, err := utils.ParseCIDR(record[0], model.Action(record[1]))
		if err != nil {
			log.Fatalf("Invalid network in embedded reserved_networks.csv: %v", err)
		}
		if v4 != nil {
			v4.Comment = record[2]
			reservedIPv4 = append(reservedIPv4, *v4)
		} else {
			v6.Comment = record[2]
			reservedIPv6 = append(reservedIPv6, *v6)
		}
	}

	behaviors = make(map[model.Action]string)
	for _, record := range readEmbedded("behaviors.csv", behaviorsData, 2) {
		behaviors[model.Action(record[0])] = record[1]
	}

	domains = make(map[string]model.Action)
	for _, record := range readEmbedded("domain_rules.csv", domainRulesData, 3) {
		action := model.Action(record[2])
		switch record[0] {
		case "domain":
			domains[record[1]] = action
		case string(model.OverrideRegexp), string(model.OverrideGlob):
			overrides = append(overrides, model.OverrideRule{Kind: model.OverrideKind(record[0]), Pattern: record[1], Action: action})
		default:
			log.Fatalf("Unknown rule kind %q in embedded domain_rules.csv", record[0])
		}
	}
}

// readEmbedded returns the data rows of an embedded CSV, skipping the header
// and rows with fewer than width columns.
func readEmbedded(name, data string, width int) [][]string {
	reader := csv.NewReader(bytes.NewBufferString(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded %s: %v", name, err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded %s: %v", name, err)
		}
		if len(record) < width {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		records = append(records, record)
	}
	return records
}

// ReservedNetworks returns copies of the built-in loopback, link-local,
// CGNAT and special-purpose IPv6 networks. All of them route direct.
func ReservedNetworks() ([]model.IPv4Rule, []model.IPv6Rule) {
	v4 := append([]model.IPv4Rule(nil), reservedIPv4...)
	v6 := append([]model.IPv6Rule(nil), reservedIPv6...)
	return v4, v6
}

// GetBehavior returns the built-in directive for an action.
func GetBehavior(action model.Action) (string, bool) {
	directive, ok := behaviors[action]
	return directive, ok
}

// RuleSet returns a fresh rule set with the built-in behaviors, reserved
// networks and sample domain rules.
func RuleSet() *model.RuleSet {
	rs := model.NewRuleSet()
	for action, directive := range behaviors {
		rs.Behaviors[action] = directive
	}
	for domain, action := range domains {
		rs.Domains[domain] = action
	}
	rs.IPv4, rs.IPv6 = ReservedNetworks()
	rs.Overrides = append([]model.OverrideRule(nil), overrides...)
	return rs
}
