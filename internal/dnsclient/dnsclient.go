// Package dnsclient provides the host resolvers used for the DNS fallback
// stage. Both resolvers answer with address literals and report any failure
// as "not resolved".
package dnsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
)

const DefaultTimeout = 3 * time.Second

// System resolves through the operating system resolver.
type System struct {
	resolver *net.Resolver
	timeout  time.Duration
}

func NewSystem(timeout time.Duration) *System {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &System{resolver: net.DefaultResolver, timeout: timeout}
}

// Resolve returns the first address of host.
func (s *System) Resolve(host string) (string, bool) {
	addrs, ok := s.ResolveEx(host)
	if !ok {
		return "", false
	}
	return addrs[0], true
}

// ResolveEx returns all addresses of host in resolver order.
func (s *System) ResolveEx(host string) ([]string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	addrs, err := s.resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		slog.Debug("System lookup failed", "host", host, "error", err)
		return nil, false
	}
	return addrs, true
}

// Client queries one DNS server directly.
type Client struct {
	server string
	client *dns.Client
}

// NewClient returns a client for server. Port 53 is used when server has no
// port.
func NewClient(server string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Client{
		server: server,
		client: &dns.Client{
			Net:     "udp",
			UDPSize: 1024,
			Timeout: timeout,
		},
	}
}

func (c *Client) Server() string {
	return c.server
}

// Lookup sends a single question of type qtype and returns the matching
// address records.
func (c *Client) Lookup(ctx context.Context, host string, qtype uint16) ([]string, error) {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(host), qtype)

	reply, rtt, err := c.client.ExchangeContext(ctx, query, c.server)
	if err != nil {
		return nil, fmt.Errorf("query %s for %s failed: %w", dns.TypeToString[qtype], host, err)
	}
	slog.Debug("DNS query finished", "host", host, "type", dns.TypeToString[qtype], "rtt", rtt)
	if reply.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s for %s failed: %s", dns.TypeToString[qtype], host, dns.RcodeToString[reply.Rcode])
	}

	var addrs []string
	for _, rr := range reply.Answer {
		switch record := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				addrs = append(addrs, record.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				addrs = append(addrs, record.AAAA.String())
			}
		}
	}
	return addrs, nil
}

// Resolve returns the first IPv4 address of host.
func (c *Client) Resolve(host string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
	defer cancel()

	addrs, err := c.Lookup(ctx, host, dns.TypeA)
	if err != nil || len(addrs) == 0 {
		slog.Debug("DNS lookup failed", "host", host, "server", c.server, "error", err)
		return "", false
	}
	return addrs[0], true
}

// ResolveEx returns the IPv4 addresses of host followed by its IPv6
// addresses. Each family gets its own timeout, so a failed or slow A query
// does not hide the AAAA answer.
func (c *Client) ResolveEx(host string) ([]string, bool) {
	var all []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := c.lookupWithTimeout(host, qtype)
		if err != nil {
			slog.Debug("DNS lookup failed", "host", host, "server", c.server, "error", err)
			continue
		}
		all = append(all, addrs...)
	}
	return all, len(all) > 0
}

func (c *Client) lookupWithTimeout(host string, qtype uint16) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
	defer cancel()
	return c.Lookup(ctx, host, qtype)
}
