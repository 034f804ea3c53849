package filter

import (
	"net/http"

	"github.com/milkpudding/gateway/internal/metrics"
	"github.com/milkpudding/gateway/internal/ratelimit"
	"github.com/milkpudding/gateway/internal/routetable"
	"github.com/milkpudding/gateway/internal/token"
)

// Default bucket settings for routes whose RateLimit ref omits arguments.
const (
	defaultCapacity   = 100
	defaultRefillRate = 10
)

// Terminal is the pipeline's final stage, reached only when no filter
// terminated the chain.
type Terminal func(w http.ResponseWriter, r *http.Request)

// Pipeline is a route's compiled filter chain. Stages run in a fixed
// order regardless of how the route blob lists them: Logging wraps the
// whole chain, then RateLimit, then Auth as the last gate before the
// forward.
type Pipeline struct {
	stages   []Filter
	terminal Terminal
}

// Deps carries the shared components pipelines are compiled against.
type Deps struct {
	Codec       *token.Codec
	Limiters    *ratelimit.Registry
	Metrics     *metrics.Metrics
	ExemptPaths []string
}

// Build compiles the pipeline for a route. Logging is always present;
// RateLimit and Auth are attached when the route's filter refs name them.
func Build(route *routetable.Route, deps Deps, terminal Terminal) *Pipeline {
	stages := []Filter{NewLoggingFilter(route.ID, deps.Metrics)}

	for _, ref := range route.Filters {
		if ref.Name != "RateLimit" {
			continue
		}
		capacity := ref.IntArg("capacity", defaultCapacity)
		rate := ref.IntArg("refillRate", defaultRefillRate)
		limiter := deps.Limiters.Obtain(route.ID, capacity, rate)
		stages = append(stages, NewRateLimitFilter(route.ID, limiter, deps.Metrics))
		break
	}

	for _, ref := range route.Filters {
		if ref.Name != "Auth" {
			continue
		}
		stages = append(stages, NewAuthFilter(deps.Codec, deps.ExemptPaths, deps.Metrics))
		break
	}

	return &Pipeline{stages: stages, terminal: terminal}
}

// NewPipeline assembles a pipeline from explicit stages, used by tests.
func NewPipeline(terminal Terminal, stages ...Filter) *Pipeline {
	return &Pipeline{stages: stages, terminal: terminal}
}

// Execute runs the chain. Each stage's next continuation fires at most
// once; repeated calls are ignored. The response writer is wrapped so
// stages can observe the final status.
func (p *Pipeline) Execute(w http.ResponseWriter, r *http.Request) {
	sw := NewStatusWriter(w)

	var run func(i int, req *http.Request)
	run = func(i int, req *http.Request) {
		if i == len(p.stages) {
			p.terminal(sw, req)
			return
		}

		invoked := false
		p.stages[i].Process(sw, req, func(next *http.Request) {
			if invoked {
				return
			}
			invoked = true
			if next == nil {
				next = req
			}
			run(i+1, next)
		})
	}
	run(0, r)
}
