package parser

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/utils"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDBParser loads a rule set from the pac_* tables. When profile is set
// only rows of that profile are read.
type MariaDBParser struct {
	db      *sql.DB
	profile string

	Rules *model.RuleSet
}

func NewMariaDBParser(dsn, profile string) (*MariaDBParser, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &MariaDBParser{
		db:      db,
		profile: profile,
		Rules:   model.NewRuleSet(),
	}, nil
}

func (p *MariaDBParser) Close() {
	p.db.Close()
}

// Parse reads all tables. Query failures abort; rows with unusable values are
// skipped and reported together once everything else has loaded.
func (p *MariaDBParser) Parse() error {
	var errs *multierror.Error
	if err := p.loadBehaviors(); err != nil {
		return fmt.Errorf("failed to load behaviors: %w", err)
	}
	if err := p.loadNetworks(&errs); err != nil {
		return fmt.Errorf("failed to load network rules: %w", err)
	}
	if err := p.loadDomains(&errs); err != nil {
		return fmt.Errorf("failed to load domain rules: %w", err)
	}
	if err := p.loadOverrides(&errs); err != nil {
		return fmt.Errorf("failed to load override rules: %w", err)
	}
	return errs.ErrorOrNil()
}

func (p *MariaDBParser) query(base, order string) (*sql.Rows, error) {
	if p.profile == "" {
		return p.db.Query(base + order)
	}
	return p.db.Query(base+" WHERE profile = ?"+order, p.profile)
}

func (p *MariaDBParser) loadBehaviors() error {
	rows, err := p.query("SELECT action, directive, is_default FROM pac_behavior", "")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var action, directive string
		var isDefault bool
		if err := rows.Scan(&action, &directive, &isDefault); err != nil {
			return err
		}
		p.Rules.Behaviors[model.Action(action)] = directive
		if isDefault {
			p.Rules.DefaultProxy = model.Action(action)
		}
	}
	return rows.Err()
}

func (p *MariaDBParser) loadNetworks(errs **multierror.Error) error {
	rows, err := p.query("SELECT network, action, comment FROM pac_network_rule", " ORDER BY id ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var network, action string
		var comment sql.NullString
		if err := rows.Scan(&network, &action, &comment); err != nil {
			return err
		}
		v4, v6, err := utils.ParseCIDR(network, model.Action(action))
		if err != nil {
			slog.Warn("Skipping network rule", "network", network, "error", err)
			*errs = multierror.Append(*errs, fmt.Errorf("pac_network_rule %q: %w: %v", network, ErrInvalidEntry, err))
			continue
		}
		if v4 != nil {
			v4.Comment = comment.String
			p.Rules.IPv4 = append(p.Rules.IPv4, *v4)
		} else {
			v6.Comment = comment.String
			p.Rules.IPv6 = append(p.Rules.IPv6, *v6)
		}
	}
	return rows.Err()
}

func (p *MariaDBParser) loadDomains(errs **multierror.Error) error {
	rows, err := p.query("SELECT domain, action FROM pac_domain_rule", "")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var domain, action string
		if err := rows.Scan(&domain, &action); err != nil {
			return err
		}
		if domain == "" || action == "" {
			*errs = multierror.Append(*errs, fmt.Errorf("pac_domain_rule %q: %w: empty domain or action", domain, ErrInvalidEntry))
			continue
		}
		p.Rules.Domains[domain] = model.Action(action)
	}
	return rows.Err()
}

type overrideRow struct {
	priority int
	rule     model.OverrideRule
}

func (p *MariaDBParser) loadOverrides(errs **multierror.Error) error {
	rows, err := p.query("SELECT priority, kind, pattern, action FROM pac_override_rule", " ORDER BY priority ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	var loaded []overrideRow
	for rows.Next() {
		var row overrideRow
		var kind, action string
		if err := rows.Scan(&row.priority, &kind, &row.rule.Pattern, &action); err != nil {
			return err
		}
		row.rule.Kind = model.OverrideKind(kind)
		row.rule.Action = model.Action(action)
		if row.rule.Kind != model.OverrideRegexp && row.rule.Kind != model.OverrideGlob {
			*errs = multierror.Append(*errs, fmt.Errorf("pac_override_rule %q: %w: unknown kind %q", row.rule.Pattern, ErrInvalidEntry, kind))
			continue
		}
		loaded = append(loaded, row)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].priority < loaded[j].priority
	})
	for _, row := range loaded {
		p.Rules.Overrides = append(p.Rules.Overrides, row.rule)
	}
	return nil
}
