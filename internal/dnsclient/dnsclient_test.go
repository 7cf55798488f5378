package dnsclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecords = map[uint16]map[string][]string{
	dns.TypeA: {
		"intranet.example.": {"intranet.example. 60 IN A 10.1.2.3", "intranet.example. 60 IN A 10.1.2.4"},
		"dual.example.":     {"dual.example. 60 IN A 127.0.0.2"},
	},
	dns.TypeAAAA: {
		"dual.example.": {"dual.example. 60 IN AAAA fe80::1"},
		"v6.example.":   {"v6.example. 60 IN AAAA 2001:db8::1"},
	},
}

// startServer runs an in-process DNS server answering from testRecords.
func startServer(t *testing.T) string {
	return startServerWithDelay(t, 0)
}

// startServerWithDelay answers every query after delay.
func startServerWithDelay(t *testing.T, delay time.Duration) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			time.Sleep(delay)
			m := new(dns.Msg)
			q := r.Question[0]
			records, known := testRecords[q.Qtype][q.Name]
			if !known && !hasName(q.Name) {
				m.SetRcode(r, dns.RcodeNameError)
				_ = w.WriteMsg(m)
				return
			}
			m.SetReply(r)
			for _, text := range records {
				rr, err := dns.NewRR(text)
				if err == nil {
					m.Answer = append(m.Answer, rr)
				}
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() {
		_ = server.ActivateAndServe()
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("DNS server did not start")
	}
	t.Cleanup(func() {
		_ = server.Shutdown()
	})
	return pc.LocalAddr().String()
}

func hasName(name string) bool {
	for _, byName := range testRecords {
		if _, ok := byName[name]; ok {
			return true
		}
	}
	return false
}

func TestClientResolve(t *testing.T) {
	c := NewClient(startServer(t), time.Second)

	ip, ok := c.Resolve("intranet.example")
	require.True(t, ok)
	assert.Equal(t, "10.1.2.3", ip)

	_, ok = c.Resolve("missing.example")
	assert.False(t, ok)

	// Only an AAAA record exists, so the plain variant finds nothing.
	_, ok = c.Resolve("v6.example")
	assert.False(t, ok)
}

func TestClientResolveEx(t *testing.T) {
	c := NewClient(startServer(t), time.Second)

	addrs, ok := c.ResolveEx("dual.example")
	require.True(t, ok)
	assert.Equal(t, []string{"127.0.0.2", "fe80::1"}, addrs)

	addrs, ok = c.ResolveEx("v6.example")
	require.True(t, ok)
	assert.Equal(t, []string{"2001:db8::1"}, addrs)

	_, ok = c.ResolveEx("missing.example")
	assert.False(t, ok)
}

func TestClientResolveExTimesOutPerFamily(t *testing.T) {
	// Both answers together take longer than the timeout, each one alone does not.
	c := NewClient(startServerWithDelay(t, 250*time.Millisecond), 400*time.Millisecond)

	addrs, ok := c.ResolveEx("dual.example")
	require.True(t, ok)
	assert.Equal(t, []string{"127.0.0.2", "fe80::1"}, addrs)
}

func TestClientLookupReportsRcode(t *testing.T) {
	c := NewClient(startServer(t), time.Second)

	_, err := c.Lookup(context.Background(), "missing.example", dns.TypeA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestNewClientAddsDefaultPort(t *testing.T) {
	assert.Equal(t, "192.0.2.53:53", NewClient("192.0.2.53", 0).Server())
	assert.Equal(t, "[2001:db8::53]:53", NewClient("2001:db8::53", 0).Server())
	assert.Equal(t, "127.0.0.1:5353", NewClient("127.0.0.1:5353", 0).Server())
}

func TestSystemUsesConfiguredResolver(t *testing.T) {
	addr := startServer(t)
	s := &System{
		timeout: time.Second,
		resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "udp", addr)
			},
		},
	}

	addrs, ok := s.ResolveEx("intranet.example")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"10.1.2.3", "10.1.2.4"}, addrs)

	ip, ok := s.Resolve("intranet.example")
	require.True(t, ok)
	assert.Contains(t, []string{"10.1.2.3", "10.1.2.4"}, ip)

	_, ok = s.Resolve("missing.example")
	assert.False(t, ok)
}

func TestSystemResolvesLiterals(t *testing.T) {
	ip, ok := NewSystem(0).Resolve("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", ip)
}
