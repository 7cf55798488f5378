package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "PACROUTER"
	DefaultConfigName = "pacrouter"
)

const (
	ProviderYAML    = "yaml"
	ProviderLists   = "lists"
	ProviderMariaDB = "mariadb"

	DNSNone   = "none"
	DNSSystem = "system"
	DNSServer = "server"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

type Configuration struct {
	Rules struct {
		Provider     string `mapstructure:"provider"`
		File         string `mapstructure:"file"`
		Dir          string `mapstructure:"dir"`
		DSN          string `mapstructure:"dsn"`
		Profile      string `mapstructure:"profile"`
		Builtin      bool   `mapstructure:"builtin"`
		DefaultProxy string `mapstructure:"default_proxy"`
	} `mapstructure:"rules"`
	DNS struct {
		Mode    string        `mapstructure:"mode"`
		Server  string        `mapstructure:"server"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"dns"`
	Log struct {
		Level  string `mapstructure:"level"`
		File   string `mapstructure:"file"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Server struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"server"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules.provider", ProviderYAML)
	v.SetDefault("rules.file", "")
	v.SetDefault("rules.dir", "")
	v.SetDefault("rules.dsn", "")
	v.SetDefault("rules.profile", "")
	v.SetDefault("rules.builtin", true)
	v.SetDefault("rules.default_proxy", "")
	v.SetDefault("dns.mode", DNSNone)
	v.SetDefault("dns.server", "")
	v.SetDefault("dns.timeout", 3*time.Second)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", LogFormatJSON)
	v.SetDefault("server.listen", "127.0.0.1:8080")
}

// Load merges defaults, the config file, PACROUTER_* environment variables
// and changed command line flags, in increasing priority. flags maps config
// keys such as "rules.file" to the flag that overrides them. Without cfgFile
// ./pacrouter.yaml is read when present.
func Load(cfgFile string, flags map[string]*pflag.Flag) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
	}
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()
	cfg.Log.Level = strings.ToUpper(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Rules.Provider = strings.ToLower(cfg.Rules.Provider)
	cfg.DNS.Mode = strings.ToLower(cfg.DNS.Mode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Configuration) Validate() error {
	var errs *multierror.Error
	switch c.Rules.Provider {
	case ProviderYAML, ProviderLists:
	case ProviderMariaDB:
		if c.Rules.DSN == "" {
			errs = multierror.Append(errs, fmt.Errorf("rules.dsn must be set for the %s provider", ProviderMariaDB))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown rules.provider %q", c.Rules.Provider))
	}
	switch c.DNS.Mode {
	case DNSNone, DNSSystem:
	case DNSServer:
		if c.DNS.Server == "" {
			errs = multierror.Append(errs, fmt.Errorf("dns.server must be set when dns.mode is %s", DNSServer))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown dns.mode %q", c.DNS.Mode))
	}
	if c.DNS.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("dns.timeout must not be negative"))
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatText:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errs.ErrorOrNil()
}
