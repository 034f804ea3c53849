package gateway

import (
	stderrors "errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/errors"
	"github.com/milkpudding/gateway/internal/filter"
	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/metrics"
	"github.com/milkpudding/gateway/internal/proxy"
	"github.com/milkpudding/gateway/internal/ratelimit"
	"github.com/milkpudding/gateway/internal/registry"
	"github.com/milkpudding/gateway/internal/routetable"
	"github.com/milkpudding/gateway/internal/token"
)

// Version is stamped at build time.
var Version = "dev"

// Gateway dispatches inbound requests: management endpoints first, then
// route matching, the matched route's filter pipeline, and the upstream
// forward. All failures funnel through one translation point.
type Gateway struct {
	cfg       *config.Config
	table     *routetable.Table
	limiters  *ratelimit.Registry
	codec     *token.Codec
	forwarder *proxy.Forwarder
	metrics   *metrics.Metrics
	mgmt      http.Handler

	mu        sync.RWMutex
	pipelines map[string]*filter.Pipeline // route id -> compiled pipeline
	compiled  uint64                      // generation the cache was built for
}

// New wires a gateway from its components. resolver may be nil.
func New(cfg *config.Config, table *routetable.Table, resolver registry.Registry) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		table:     table,
		limiters:  ratelimit.NewRegistry(),
		codec:     token.NewCodec(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		forwarder: proxy.New(cfg.Upstream, resolver),
		metrics:   metrics.New(),
		pipelines: make(map[string]*filter.Pipeline),
	}
	g.mgmt = g.managementMux()

	table.OnChange(func(generation uint64) {
		g.rebuildPipelines(generation)
	})
	return g
}

// Codec exposes the token codec for the management endpoints and tests.
func (g *Gateway) Codec() *token.Codec { return g.codec }

// Forwarder exposes the upstream forwarder for tests.
func (g *Gateway) Forwarder() *proxy.Forwarder { return g.forwarder }

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.isManagementPath(r.URL.Path) {
		g.mgmt.ServeHTTP(w, r)
		return
	}

	snap := g.table.Snapshot()
	route := snap.Match(r.Method, r.URL.Path)
	if route == nil {
		g.fail(w, r, errors.ErrNoRoute)
		return
	}

	g.pipelineFor(route, snap.Generation()).Execute(w, r)
}

func (g *Gateway) isManagementPath(path string) bool {
	return path == "/healthz" || path == "/metrics" ||
		path == "/gateway" || strings.HasPrefix(path, "/gateway/")
}

// pipelineFor returns the route's compiled pipeline for the given
// generation, compiling on demand when a request arrives between the
// table swap and the rebuild notification.
func (g *Gateway) pipelineFor(route *routetable.Route, generation uint64) *filter.Pipeline {
	g.mu.RLock()
	p, ok := g.pipelines[route.ID]
	current := g.compiled
	g.mu.RUnlock()
	if ok && current == generation {
		return p
	}

	return g.compile(route)
}

func (g *Gateway) compile(route *routetable.Route) *filter.Pipeline {
	return filter.Build(route, g.deps(), func(w http.ResponseWriter, r *http.Request) {
		if err := g.forwarder.Forward(w, r, route); err != nil {
			g.fail(w, r, err)
		}
	})
}

func (g *Gateway) deps() filter.Deps {
	return filter.Deps{
		Codec:       g.codec,
		Limiters:    g.limiters,
		Metrics:     g.metrics,
		ExemptPaths: g.cfg.Auth.ExemptPaths,
	}
}

// rebuildPipelines recompiles every route's pipeline after a table
// refresh and drops limiters for removed routes.
func (g *Gateway) rebuildPipelines(generation uint64) {
	snap := g.table.Snapshot()
	next := make(map[string]*filter.Pipeline, snap.Len())
	keep := make(map[string]bool, snap.Len())
	for _, route := range snap.Routes() {
		next[route.ID] = g.compile(route)
		keep[route.ID] = true
	}

	g.mu.Lock()
	g.pipelines = next
	g.compiled = generation
	g.mu.Unlock()

	g.limiters.Retain(keep)
	g.metrics.TableRefreshed(generation, snap.Len())
}

// fail translates an error into its envelope and writes it.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, registry.ErrServiceNotFound) {
		err = errors.ErrNoRoute
	}

	gwErr := errors.Translate(err)
	logging.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", gwErr.Code),
		zap.Error(err),
	)
	gwErr.WriteJSON(w)
}
