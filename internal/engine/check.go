package engine

import (
	"fmt"

	"github.com/chaifeng/proxy.pac/internal/model"
)

// ExpectDefault in a directive check stands for the global default directive.
const ExpectDefault = "default"

type CheckResult struct {
	Case     model.CheckCase
	Expected string // expected value after action names are expanded
	Got      string
	Passed   bool
}

func (r CheckResult) String() string {
	if r.Passed {
		if r.Case.Kind == model.CheckNetwork {
			return fmt.Sprintf("OK: Test for %s passed.", r.Case.Input)
		}
		return fmt.Sprintf("OK: Test for %s => %s passed.", r.Case.Input, r.Expected)
	}
	return fmt.Sprintf("Failed: Test for %s failed. Expected: %s, but got: %s", r.Case.Input, orNull(r.Expected), orNull(r.Got))
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

// RunChecks evaluates every case and returns the results in order together
// with the number of failures. A directive check may name an action
// ("proxy", "blocked") or "default" instead of a literal directive.
func RunChecks(e *Evaluator, cases []model.CheckCase) ([]CheckResult, int) {
	results := make([]CheckResult, 0, len(cases))
	failed := 0
	for _, c := range cases {
		r := CheckResult{Case: c, Expected: c.Expected}
		switch c.Kind {
		case model.CheckNetwork:
			if m, ok := e.MatchNetwork(c.Input); ok {
				r.Got = m.Network
			}
		case model.CheckDirective:
			r.Expected = e.expectedDirective(c.Expected)
			r.Got = e.FindProxyForURL("", c.Input)
		default:
			r.Got = fmt.Sprintf("unknown check kind %q", c.Kind)
			results = append(results, r)
			failed++
			continue
		}
		r.Passed = r.Got == r.Expected
		if !r.Passed {
			failed++
		}
		results = append(results, r)
	}
	return results, failed
}

func (e *Evaluator) expectedDirective(expected string) string {
	if expected == ExpectDefault {
		return e.behaviors.Default()
	}
	if directive, ok := e.behaviors.Directive(model.Action(expected)); ok {
		return directive
	}
	return expected
}

// BuiltinChecks returns the classic PAC self-test cases. They
// assume the well-known networks, the default behaviors and the sample
// domain rules are loaded.
func BuiltinChecks() []model.CheckCase {
	return []model.CheckCase{
		{Kind: model.CheckNetwork, Input: "127.234.168.10", Expected: "127.0.0.0/8"},
		{Kind: model.CheckNetwork, Input: "1.1.1.1", Expected: ""},
		{Kind: model.CheckNetwork, Input: "fe80::f0:c6b3:c766:9b1e", Expected: "fe80::/10"},
		{Kind: model.CheckDirective, Input: "com.google", Expected: string(model.Proxy)},
		{Kind: model.CheckDirective, Input: "domains.google", Expected: string(model.Proxy)},
		{Kind: model.CheckDirective, Input: "www.not-google", Expected: ExpectDefault},
		{Kind: model.CheckDirective, Input: "127.3.4.5", Expected: string(model.Direct)},
		{Kind: model.CheckDirective, Input: "114.114.114.114", Expected: string(model.Direct)},
		{Kind: model.CheckDirective, Input: "www.whitehouse.com", Expected: string(model.Blocked)},
		{Kind: model.CheckDirective, Input: "adservice.google.com.xx", Expected: string(model.Blocked)},
	}
}
