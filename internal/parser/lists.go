package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"
)

// ErrInvalidEntry marks a rule entry that was rejected while loading.
var ErrInvalidEntry = errors.New("invalid rule entry")

const (
	listPrefix = "domain-rules-"
	listSuffix = ".txt"

	regexpPrefix = "regexp:"
	globPrefix   = "glob:"
)

// ListParser reads a plain rule list: one entry per line, '#' starts a
// comment line. An entry is a domain, an address used as an exact key, a
// CIDR network, "regexp:<expr>" or "glob:<pattern>". Every entry gets the
// parser's action.
type ListParser struct {
	scanner *bufio.Scanner
	action  model.Action
	source  string

	Rules *model.RuleSet
}

func NewListParser(reader io.Reader, action model.Action, source string) *ListParser {
	return &ListParser{
		scanner: bufio.NewScanner(reader),
		action:  action,
		source:  source,
		Rules:   model.NewRuleSet(),
	}
}

// Parse keeps every valid entry. Rejected lines are collected and returned
// together as a *multierror.Error wrapping ErrInvalidEntry.
func (p *ListParser) Parse() error {
	var errs *multierror.Error
	lineNo := 0
	for p.scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.addEntry(line); err != nil {
			slog.Warn("Skipping rule entry", "source", p.source, "line", lineNo, "entry", line, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s:%d: %w: %v", p.source, lineNo, ErrInvalidEntry, err))
		}
	}
	if err := p.scanner.Err(); err != nil {
		return fmt.Errorf("error reading rule list %s: %w", p.source, err)
	}
	return errs.ErrorOrNil()
}

func (p *ListParser) addEntry(line string) error {
	switch {
	case strings.HasPrefix(line, regexpPrefix):
		pattern := strings.TrimSpace(strings.TrimPrefix(line, regexpPrefix))
		if _, err := regexp.Compile(pattern); err != nil {
			return err
		}
		p.Rules.Overrides = append(p.Rules.Overrides, model.OverrideRule{Kind: model.OverrideRegexp, Pattern: pattern, Action: p.action})
		return nil
	case strings.HasPrefix(line, globPrefix):
		pattern := strings.TrimSpace(strings.TrimPrefix(line, globPrefix))
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return err
		}
		p.Rules.Overrides = append(p.Rules.Overrides, model.OverrideRule{Kind: model.OverrideGlob, Pattern: pattern, Action: p.action})
		return nil
	}

	// Trailing comments are only allowed after plain entries.
	entry := strings.Fields(line)[0]
	if strings.Contains(entry, "/") {
		v4, v6, err := utils.ParseCIDR(entry, p.action)
		if err != nil {
			return err
		}
		if v4 != nil {
			p.Rules.IPv4 = append(p.Rules.IPv4, *v4)
		} else {
			p.Rules.IPv6 = append(p.Rules.IPv6, *v6)
		}
		return nil
	}
	if _, err := netip.ParseAddr(entry); err == nil {
		p.Rules.Domains[entry] = p.action
		return nil
	}
	domain := strings.TrimPrefix(entry, ".")
	if !validDomain(domain) {
		return fmt.Errorf("malformed domain %q", entry)
	}
	p.Rules.Domains[domain] = p.action
	return nil
}

func validDomain(domain string) bool {
	if domain == "" || strings.Contains(domain, "..") || strings.HasSuffix(domain, ".") {
		return false
	}
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_':
		default:
			return false
		}
	}
	return true
}

// ActionFromFileName extracts <action> from "domain-rules-<action>.txt".
func ActionFromFileName(path string) (model.Action, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, listPrefix) || !strings.HasSuffix(name, listSuffix) {
		return "", false
	}
	action := strings.TrimSuffix(strings.TrimPrefix(name, listPrefix), listSuffix)
	if action == "" {
		return "", false
	}
	return model.Action(action), true
}

// ParseListDir loads every domain-rules-<action>.txt file in dir, in file
// name order. Entry errors from all files are aggregated; the rules that did
// parse are returned alongside them.
func ParseListDir(dir string) (*model.RuleSet, error) {
	paths, err := filepath.Glob(filepath.Join(dir, listPrefix+"*"+listSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list rule files in %s: %w", dir, err)
	}
	sort.Strings(paths)

	rules := model.NewRuleSet()
	var errs *multierror.Error
	for _, path := range paths {
		action, ok := ActionFromFileName(path)
		if !ok {
			continue
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		p := NewListParser(file, action, filepath.Base(path))
		parseErr := p.Parse()
		file.Close()

		var merr *multierror.Error
		if parseErr != nil && !errors.As(parseErr, &merr) {
			return nil, parseErr
		}
		errs = multierror.Append(errs, parseErr)
		rules.Merge(p.Rules)
		slog.Debug("Loaded rule list", "file", path, "action", action, "domains", len(p.Rules.Domains), "overrides", len(p.Rules.Overrides))
	}
	return rules, errs.ErrorOrNil()
}
