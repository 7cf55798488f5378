package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaifeng/proxy.pac/internal/engine"
	"github.com/chaifeng/proxy.pac/pkg/wellknown"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	e, err := engine.NewEvaluator(wellknown.RuleSet())
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(e))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestResolveByHost(t *testing.T) {
	srv := newTestServer(t)

	var d DecisionResponse
	status := getJSON(t, srv, "/resolve?host=www.whitehouse.com", &d)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PROXY 0.0.0.0:0", d.Directive)
	assert.Equal(t, "blocked", d.Action)
	assert.Equal(t, "DOMAIN", d.Stage)
	assert.Equal(t, "whitehouse.com", d.Rule)
}

func TestResolveByURL(t *testing.T) {
	srv := newTestServer(t)

	var d DecisionResponse
	status := getJSON(t, srv, "/resolve?url="+url.QueryEscape("https://domains.google:8443/path"), &d)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "domains.google", d.Host)
	assert.Equal(t, "SOCKS5 127.0.0.1:1080", d.Directive)

	status = getJSON(t, srv, "/resolve?host=www.not-google", &d)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "DIRECT; SOCKS5 127.0.0.1:1080", d.Directive)
	assert.Equal(t, "DEFAULT", d.Stage)
}

func TestResolveRequiresHost(t *testing.T) {
	srv := newTestServer(t)

	var e ErrorResponse
	status := getJSON(t, srv, "/resolve", &e)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, e.Message)
}

func TestNetwork(t *testing.T) {
	srv := newTestServer(t)

	var n NetworkResponse
	status := getJSON(t, srv, "/network?ip=127.234.168.10", &n)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, n.Matched)
	assert.Equal(t, "127.0.0.0/8", n.Network)
	assert.Equal(t, "Loopback", n.Comment)

	n = NetworkResponse{}
	getJSON(t, srv, "/network?ip="+url.QueryEscape("fe80::f0:c6b3:c766:9b1e"), &n)
	assert.Equal(t, "fe80::/10", n.Network)

	n = NetworkResponse{}
	getJSON(t, srv, "/network?ip=1.1.1.1", &n)
	assert.False(t, n.Matched)
	assert.Empty(t, n.Network)

	var e ErrorResponse
	status = getJSON(t, srv, "/network", &e)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var h HealthResponse
	status := getJSON(t, srv, "/healthz", &h)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 3, h.Rules.IPv4Networks)
	assert.Equal(t, 6, h.Rules.IPv6Networks)
}
