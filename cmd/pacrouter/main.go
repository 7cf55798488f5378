package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chaifeng/proxy.pac/internal/config"
	"github.com/chaifeng/proxy.pac/internal/dnsclient"
	"github.com/chaifeng/proxy.pac/internal/engine"
	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/parser"
	"github.com/chaifeng/proxy.pac/pkg/wellknown"
)

var (
	cfgFile string
	cfg     *config.Configuration
)

// flagKeys maps config keys to the command line flags overriding them.
var flagKeys = map[string]string{
	"rules.provider":      "provider",
	"rules.file":          "rules",
	"rules.dir":           "rules-dir",
	"rules.dsn":           "db",
	"rules.profile":       "profile",
	"rules.builtin":       "builtin",
	"rules.default_proxy": "default-proxy",
	"dns.mode":            "dns",
	"dns.server":          "dns-server",
	"dns.timeout":         "dns-timeout",
	"log.level":           "log-level",
	"log.file":            "log-file",
	"log.format":          "log-format",
	"server.listen":       "listen",
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pacrouter",
		Short: "A proxy auto-config routing engine",
		Long: `pacrouter decides, for a host name or IP literal, whether a client should
	connect directly, be blocked, or go through one of the configured proxies.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	// Set up flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./pacrouter.yaml when present)")
	flags.String("provider", config.ProviderYAML, "Rule provider type: 'yaml', 'lists' or 'mariadb'")
	flags.String("rules", "", "YAML rule file (for 'yaml' provider)")
	flags.String("rules-dir", "", "Directory of domain-rules-<action>.txt files (for 'lists' provider)")
	flags.String("db", "", "Database connection string (for 'mariadb' provider)")
	flags.String("profile", "", "Rule profile to filter DB queries (adds WHERE profile = '...')")
	flags.Bool("builtin", true, "Include the built-in behaviors, reserved networks and sample rules")
	flags.String("default-proxy", "", "Action whose directive follows DIRECT in the default directive")
	flags.String("dns", config.DNSNone, "DNS fallback: 'none', 'system' or 'server'")
	flags.String("dns-server", "", "DNS server address (for --dns server)")
	flags.Duration("dns-timeout", dnsclient.DefaultTimeout, "Timeout of a single DNS lookup")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-file", "", "Log file path (default: stderr)")
	flags.String("log-format", config.LogFormatJSON, "Log format: 'json' or 'text'")

	rootCmd.AddCommand(newResolveCmd(), newBatchCmd(), newCheckCmd(), newServeCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, args []string) error {
	bound := make(map[string]*pflag.Flag, len(flagKeys))
	for key, name := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			bound[key] = flag
		}
	}

	loaded, err := config.Load(cfgFile, bound)
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(setupLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.Format))
	if cfg.Source != "" {
		slog.Debug("Using config file", "path", cfg.Source)
	}
	return nil
}

func setupLogger(level, logFilePath, format string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	toFile := false
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
			toFile = true
		}
		// We don't log an error here because the logger isn't set up yet.
		// It will just fall back to stderr.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if strings.EqualFold(format, config.LogFormatText) {
		return slog.New(tint.NewHandler(logWriter, &tint.Options{
			Level:      lvl,
			TimeFormat: time.DateTime,
			NoColor:    toFile,
		}))
	}
	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

// loadRuleSet reads the configured provider. Entry errors are logged and the
// remaining rules are used; any other error aborts.
func loadRuleSet(c *config.Configuration) (*model.RuleSet, error) {
	rules := model.NewRuleSet()
	if c.Rules.Builtin {
		rules = wellknown.RuleSet()
	}

	loaded, err := loadProvider(c)
	if err != nil {
		if !errors.Is(err, parser.ErrInvalidEntry) || loaded == nil {
			return nil, err
		}
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, entryErr := range merr.Errors {
				slog.Warn("Skipped invalid rule entry", "error", entryErr)
			}
		} else {
			slog.Warn("Skipped invalid rule entries", "error", err)
		}
	}
	if loaded != nil {
		rules.Merge(loaded)
		if loaded.DefaultProxy != model.Proxy {
			rules.DefaultProxy = loaded.DefaultProxy
		}
	}
	if c.Rules.DefaultProxy != "" {
		rules.DefaultProxy = model.Action(c.Rules.DefaultProxy)
	}
	fillBuiltinBehaviors(rules)
	return rules, nil
}

// fillBuiltinBehaviors gives every referenced action without a directive its
// built-in directive, if it has one. This matters with --builtin=false.
func fillBuiltinBehaviors(rules *model.RuleSet) {
	fill := func(action model.Action) {
		if _, ok := rules.Behaviors[action]; ok {
			return
		}
		if directive, ok := wellknown.GetBehavior(action); ok {
			rules.Behaviors[action] = directive
			slog.Debug("Using built-in behavior", "action", action, "directive", directive)
		}
	}
	fill(rules.DefaultProxy)
	for _, r := range rules.IPv4 {
		fill(r.Action)
	}
	for _, r := range rules.IPv6 {
		fill(r.Action)
	}
	for _, action := range rules.Domains {
		fill(action)
	}
	for _, o := range rules.Overrides {
		fill(o.Action)
	}
}

func loadProvider(c *config.Configuration) (*model.RuleSet, error) {
	switch c.Rules.Provider {
	case config.ProviderYAML:
		if c.Rules.File == "" {
			if !c.Rules.Builtin {
				return nil, fmt.Errorf("rules file path must be provided for yaml provider")
			}
			return nil, nil
		}
		file, err := os.Open(c.Rules.File)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return parser.ParseRuleSet(file)
	case config.ProviderLists:
		if c.Rules.Dir == "" {
			return nil, fmt.Errorf("rules directory must be provided for lists provider")
		}
		return parser.ParseListDir(c.Rules.Dir)
	case config.ProviderMariaDB:
		if c.Rules.DSN == "" {
			return nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		p, err := parser.NewMariaDBParser(c.Rules.DSN, c.Rules.Profile)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		if err := p.Parse(); err != nil {
			return p.Rules, err
		}
		return p.Rules, nil
	default:
		return nil, fmt.Errorf("unknown rule provider: %s", c.Rules.Provider)
	}
}

func newResolver(c *config.Configuration) engine.HostResolver {
	switch c.DNS.Mode {
	case config.DNSSystem:
		return dnsclient.NewSystem(c.DNS.Timeout)
	case config.DNSServer:
		return dnsclient.NewClient(c.DNS.Server, c.DNS.Timeout)
	default:
		return nil
	}
}

// buildEvaluator loads the rules and builds the evaluator for the current
// configuration.
func buildEvaluator() (*engine.Evaluator, error) {
	slog.Info("Loading rules...", "provider", cfg.Rules.Provider, "builtin", cfg.Rules.Builtin)
	rules, err := loadRuleSet(cfg)
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		return nil, err
	}

	var opts []engine.Option
	if resolver := newResolver(cfg); resolver != nil {
		opts = append(opts, engine.WithResolver(resolver))
	}
	evaluator, err := engine.NewEvaluator(rules, opts...)
	if err != nil {
		slog.Error("Failed to build evaluator", "error", err)
		return nil, err
	}

	stats := evaluator.Stats()
	slog.Info("Successfully loaded rules",
		"ipv4_networks", stats.IPv4Networks,
		"ipv6_networks", stats.IPv6Networks,
		"domains", stats.Domains,
		"overrides", stats.Overrides,
		"default_proxy", evaluator.Behaviors().DefaultProxy(),
		"dns", cfg.DNS.Mode,
	)
	return evaluator, nil
}
