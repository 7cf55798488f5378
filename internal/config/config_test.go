package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Rules.Provider != ProviderYAML || !cfg.Rules.Builtin {
		t.Errorf("unexpected rules defaults %+v", cfg.Rules)
	}
	if cfg.DNS.Mode != DNSNone || cfg.DNS.Timeout != 3*time.Second {
		t.Errorf("unexpected dns defaults %+v", cfg.DNS)
	}
	if cfg.Log.Level != "INFO" || cfg.Log.Format != LogFormatJSON {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Source != "" {
		t.Errorf("expected no config file, got %s", cfg.Source)
	}
}

func TestLoadReadsDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeConfig(t, dir, "pacrouter.yaml", "rules:\n  provider: lists\n  dir: ./rules\n  builtin: false\n")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Rules.Provider != ProviderLists || cfg.Rules.Dir != "./rules" || cfg.Rules.Builtin {
		t.Errorf("expected values from pacrouter.yaml, got %+v", cfg.Rules)
	}
	if !strings.HasSuffix(cfg.Source, "pacrouter.yaml") {
		t.Errorf("expected Source to name the file, got %q", cfg.Source)
	}
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "custom.yaml", strings.Join([]string{
		"log:",
		"  level: debug",
		"  format: text",
		"dns:",
		"  mode: server",
		"  server: 192.0.2.53",
		"  timeout: 500ms",
		"server:",
		"  listen: 127.0.0.1:9000",
	}, "\n"))

	t.Setenv("PACROUTER_LOG_LEVEL", "warn")
	t.Setenv("PACROUTER_SERVER_LISTEN", "127.0.0.1:9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("listen", "", "")
	fs.String("log-format", "json", "")
	if err := fs.Parse([]string{"--listen", "127.0.0.1:9200"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := Load(path, map[string]*pflag.Flag{
		"server.listen": fs.Lookup("listen"),
		"log.format":    fs.Lookup("log-format"),
	})
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Log.Level != "WARN" {
		t.Errorf("expected env to override file, got %s", cfg.Log.Level)
	}
	if cfg.Server.Listen != "127.0.0.1:9200" {
		t.Errorf("expected changed flag to win, got %s", cfg.Server.Listen)
	}
	if cfg.Log.Format != LogFormatText {
		t.Errorf("expected unchanged flag to leave the file value, got %s", cfg.Log.Format)
	}
	if cfg.DNS.Timeout != 500*time.Millisecond || cfg.DNS.Server != "192.0.2.53" {
		t.Errorf("unexpected dns settings %+v", cfg.DNS)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	var cfg Configuration
	cfg.Rules.Provider = "ldap"
	cfg.DNS.Mode = DNSServer
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"rules.provider", "dns.server", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}

	cfg.Rules.Provider = ProviderMariaDB
	cfg.DNS.Mode = DNSNone
	cfg.Log.Format = LogFormatJSON
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "rules.dsn") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir in Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
