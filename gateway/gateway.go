package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/internal/metrics"
	"github.com/jrsteele09/cube-auth/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	AuthPrefix     = "/auth"
	requestTimeout = 30 * time.Second

	upstreamAuth    = "auth"
	upstreamProfile = "profile"
)

// Gateway is the single public entry point. Login traffic under /auth is
// forwarded without a credential; every other request must pass the guard
// before it reaches the profile service.
type Gateway struct {
	router  chi.Router
	guard   *edge.Guard
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type Option func(*Gateway)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func New(authURL, profileURL string, guard *edge.Guard, m *metrics.Metrics, options ...Option) (*Gateway, error) {
	authTarget, err := parseUpstream(authURL)
	if err != nil {
		return nil, fmt.Errorf("[gateway New] auth upstream: %w", err)
	}
	profileTarget, err := parseUpstream(profileURL)
	if err != nil {
		return nil, fmt.Errorf("[gateway New] profile upstream: %w", err)
	}

	g := &Gateway{
		guard:   guard,
		metrics: m,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)

	r.Get(server.RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, server.RouteMetrics, m.Handler())

	authProxy := http.StripPrefix(AuthPrefix, g.newProxy(upstreamAuth, authTarget))
	r.Handle(AuthPrefix, authProxy)
	r.Handle(AuthPrefix+"/*", authProxy)

	profileProxy := g.newProxy(upstreamProfile, profileTarget)
	r.Group(func(r chi.Router) {
		r.Use(guard.Handler)
		r.Handle("/*", profileProxy)
	})
	// CORS preflights never carry a credential; the profile service answers them.
	// Registered after the group so it replaces the guarded OPTIONS endpoint.
	r.Options("/*", profileProxy.ServeHTTP)

	g.router = r
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) newProxy(name string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := middleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			g.metrics.ProxiedRequest(name, resp.StatusCode)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.logger.Warn().Err(err).Str("upstream", name).Str("path", r.URL.Path).Msg("upstream unavailable")
			g.metrics.ProxiedRequest(name, http.StatusBadGateway)
			server.WriteJSONError(w, http.StatusBadGateway, "upstream_unavailable")
		},
	}
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", raw)
	}
	return u, nil
}
