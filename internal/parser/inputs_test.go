package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/chaifeng/proxy.pac/internal/model"
)

func TestParseHostsReadsHostColumn(t *testing.T) {
	hostsCSV := strings.NewReader("Site,Host\nDC1,www.google\nDC2,127.0.0.1\nDC3,\n")

	hosts, err := ParseHosts(hostsCSV)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d (%v)", len(hosts), hosts)
	}
	if hosts[0] != "www.google" || hosts[1] != "127.0.0.1" {
		t.Fatalf("unexpected hosts %v", hosts)
	}
}

func TestParseHostsFallsBackToPlainLines(t *testing.T) {
	// Without a Host header every line is an entry, including the first.
	hostsTXT := strings.NewReader(strings.Join([]string{
		"www.whitehouse.com",
		"# comment",
		"",
		"fe80::1",
		"  domains.google  ",
	}, "\n"))

	hosts, err := ParseHosts(hostsTXT)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{"www.whitehouse.com", "fe80::1", "domains.google"}
	if strings.Join(hosts, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, hosts)
	}
}

func TestParseHostsEmptyInput(t *testing.T) {
	hosts, err := ParseHosts(strings.NewReader(""))
	if err != nil {
		t.Fatalf("expected no error for empty input, got %v", err)
	}
	if len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %v", hosts)
	}
}

func TestParseCheckCases(t *testing.T) {
	checks := strings.NewReader(strings.Join([]string{
		"Kind,Input,Expected",
		"network,127.234.168.10,127.0.0.0/8",
		"network,1.1.1.1,",
		"directive,www.not-google,default",
		`directive,example.org,"DIRECT; SOCKS5 127.0.0.1:1080"`,
	}, "\n"))

	cases, err := ParseCheckCases(checks)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(cases) != 4 {
		t.Fatalf("expected 4 cases, got %d", len(cases))
	}
	if cases[1].Kind != model.CheckNetwork || cases[1].Expected != "" {
		t.Fatalf("expected empty network expectation, got %#v", cases[1])
	}
	if cases[3].Expected != "DIRECT; SOCKS5 127.0.0.1:1080" {
		t.Fatalf("expected quoted directive to be kept, got %q", cases[3].Expected)
	}
}

func TestParseCheckCasesErrors(t *testing.T) {
	_, err := ParseCheckCases(strings.NewReader("input,expected\nx,y\n"))
	if err == nil {
		t.Fatalf("expected error when kind column is missing")
	}

	_, err = ParseCheckCases(strings.NewReader("kind,input,expected\nport,x,y\n"))
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for unknown kind, got %v", err)
	}

	_, err = ParseCheckCases(strings.NewReader(""))
	if err == nil {
		t.Fatalf("expected error when file is empty")
	}
}
