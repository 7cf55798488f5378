package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chaifeng/proxy.pac/internal/engine"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type DecisionResponse struct {
	Host       string `json:"host"`
	Directive  string `json:"directive"`
	Action     string `json:"action,omitempty"`
	Stage      string `json:"stage"`
	Rule       string `json:"rule,omitempty"`
	ResolvedIP string `json:"resolved_ip,omitempty"`
}

type NetworkResponse struct {
	IP      string `json:"ip"`
	Matched bool   `json:"matched"`
	Network string `json:"network,omitempty"`
	Action  string `json:"action,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type HealthResponse struct {
	Status string       `json:"status"`
	Rules  engine.Stats `json:"rules"`
}

type handler struct {
	evaluator *engine.Evaluator
}

// NewRouter returns the HTTP API for e.
func NewRouter(e *engine.Evaluator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	RegisterRoutes(r, e)
	return r
}

func RegisterRoutes(r chi.Router, e *engine.Evaluator) {
	h := &handler{evaluator: e}
	r.Get("/resolve", h.resolve)
	r.Get("/network", h.network)
	r.Get("/healthz", h.health)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// resolve handles GET /resolve?host=<host>&url=<url>. The host is taken from
// url when not given.
func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	rawURL := r.URL.Query().Get("url")
	if host == "" && rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			host = u.Hostname()
		}
	}
	if host == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "host or url query parameter is required"})
		return
	}

	d := h.evaluator.Evaluate(host)
	writeJSON(w, http.StatusOK, DecisionResponse{
		Host:       d.Host,
		Directive:  d.Directive,
		Action:     string(d.Action),
		Stage:      string(d.Stage),
		Rule:       d.Rule,
		ResolvedIP: d.ResolvedIP,
	})
}

func (h *handler) network(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "ip query parameter is required"})
		return
	}

	resp := NetworkResponse{IP: ip}
	if m, ok := h.evaluator.MatchNetwork(ip); ok {
		resp.Matched = true
		resp.Network = m.Network
		resp.Action = string(m.Action)
		resp.Comment = m.Comment
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Rules: h.evaluator.Stats()})
}
