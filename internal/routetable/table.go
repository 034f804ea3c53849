package routetable

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/logging"
)

var treeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Snapshot is one immutable generation of the routing index. Requests
// match against a single snapshot for their whole lifetime, so a refresh
// published mid-flight never switches tables under a request.
type Snapshot struct {
	generation uint64
	routes     []*Route // sorted by Order, then ID
	byID       map[string]*Route
	tree       *httprouter.Router
	prefixes   []*Route // prefix-pattern routes, same sort order
	linear     []*Route // routes whose patterns conflict in the tree, same sort order
}

// Generation returns the snapshot's version counter.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Routes returns all installed routes in priority order. The returned
// slice must not be modified.
func (s *Snapshot) Routes() []*Route { return s.routes }

// Get returns the route with the given id, or nil.
func (s *Snapshot) Get(id string) *Route { return s.byID[id] }

// Len returns the number of installed routes.
func (s *Snapshot) Len() int { return len(s.routes) }

// routeCapture smuggles the matched route out of an httprouter handle.
// Only the tree's own handles ever see it, and they only set the field.
type routeCapture struct {
	http.ResponseWriter
	route *Route
}

// Match returns the highest-priority route accepting the given method and
// path, or nil when nothing matches. Candidates from the tree, the linear
// tier and the prefix tier compete on Order; the tree wins ties.
func (s *Snapshot) Match(method, path string) *Route {
	var exact *Route
	if handle, params, _ := s.tree.Lookup(method, path); handle != nil {
		capture := &routeCapture{}
		handle(capture, nil, params)
		exact = capture.route
	}

	var linear *Route
	for _, r := range s.linear {
		if !r.AllowsMethod(method) {
			continue
		}
		if matchSegments(r.Pattern, path) {
			linear = r
			break
		}
	}

	var prefix *Route
	for _, r := range s.prefixes {
		if !r.AllowsMethod(method) {
			continue
		}
		base := r.PrefixBase()
		if base == "" || path == base || strings.HasPrefix(path, base+"/") {
			prefix = r
			break
		}
	}

	best := exact
	if linear != nil && (best == nil || linear.Order < best.Order) {
		best = linear
	}
	if prefix != nil && (best == nil || prefix.Order < best.Order) {
		best = prefix
	}
	return best
}

// matchSegments tests a non-prefix pattern against a concrete path,
// segment by segment. A {name} segment matches any single non-empty
// segment.
func matchSegments(pattern, path string) bool {
	if pattern == path {
		return true
	}
	ps := strings.Split(pattern, "/")
	hs := strings.Split(path, "/")
	if len(ps) != len(hs) {
		return false
	}
	for i, seg := range ps {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
			if hs[i] == "" {
				return false
			}
			continue
		}
		if seg != hs[i] {
			return false
		}
	}
	return true
}

// Table is the versioned routing index. The current snapshot is swapped
// atomically on refresh; readers never block on writers.
type Table struct {
	current atomic.Pointer[Snapshot]

	mu   sync.Mutex // serializes RefreshAll and subscriber registration
	subs []func(generation uint64)
}

// NewTable creates a table holding an empty generation-zero snapshot.
func NewTable() *Table {
	t := &Table{}
	t.current.Store(emptySnapshot(0))
	return t
}

func emptySnapshot(generation uint64) *Snapshot {
	return &Snapshot{
		generation: generation,
		byID:       make(map[string]*Route),
		tree:       httprouter.New(),
	}
}

// Snapshot returns the current generation. Callers hold it for the
// duration of one request.
func (t *Table) Snapshot() *Snapshot {
	return t.current.Load()
}

// Generation returns the current snapshot's version counter.
func (t *Table) Generation() uint64 {
	return t.current.Load().generation
}

// OnChange registers a callback invoked after every successful refresh
// with the new generation. Callbacks run synchronously on the refresh
// goroutine and must not call RefreshAll.
func (t *Table) OnChange(fn func(generation uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// RefreshAll replaces the whole table with the routes parsed from blob.
// A blank or unparseable blob leaves the table untouched; individual bad
// route definitions are logged and skipped. On success the new snapshot
// is published, the generation advances by one, and change subscribers
// are notified.
func (t *Table) RefreshAll(blob string) error {
	if strings.TrimSpace(blob) == "" {
		logging.Warn("route refresh skipped: empty configuration blob")
		return fmt.Errorf("empty configuration blob")
	}

	routes, itemErrs, err := ParseBlob(blob)
	if err != nil {
		logging.Error("route refresh skipped: blob did not parse", zap.Error(err))
		return err
	}
	for _, ierr := range itemErrs {
		logging.Warn("route definition skipped", zap.Error(ierr))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.current.Load()
	next := emptySnapshot(old.generation + 1)
	skipped := len(itemErrs)

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Order != routes[j].Order {
			return routes[i].Order < routes[j].Order
		}
		return routes[i].ID < routes[j].ID
	})

	for _, route := range routes {
		if _, dup := next.byID[route.ID]; dup {
			logging.Warn("route definition skipped: duplicate id", zap.String("route_id", route.ID))
			skipped++
			continue
		}
		if route.IsPrefix() {
			next.prefixes = append(next.prefixes, route)
		} else if err := installExact(next.tree, route); err != nil {
			// A well-formed pattern the shared tree cannot hold still
			// installs; it is matched in priority order instead.
			logging.Info("route pattern overlaps the match tree, using ordered matching",
				zap.String("route_id", route.ID), zap.String("pattern", route.Pattern))
			next.linear = append(next.linear, route)
		}
		next.byID[route.ID] = route
		next.routes = append(next.routes, route)
	}

	t.current.Store(next)
	logging.Info("route table refreshed",
		zap.Uint64("generation", next.generation),
		zap.Int("installed", len(next.routes)),
		zap.Int("skipped", skipped))

	for _, fn := range t.subs {
		fn(next.generation)
	}
	return nil
}

// installExact registers a non-prefix route into the match tree, converting
// {name} segments to the tree's parameter syntax. httprouter reports
// pattern conflicts by panicking, so registration recovers and returns
// the conflict as an error.
func installExact(tree *httprouter.Router, route *Route) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pattern %q conflicts with an installed route: %v", route.Pattern, r)
		}
	}()

	pattern := convertPattern(route.Pattern)
	handle := func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if c, ok := w.(*routeCapture); ok {
			c.route = route
		}
	}

	methods := route.Methods
	if len(methods) == 0 {
		methods = treeMethods
	}
	for _, m := range methods {
		tree.Handle(m, pattern, handle)
	}
	return nil
}

// convertPattern rewrites {name} path segments into :name parameters.
func convertPattern(pattern string) string {
	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
			segments[i] = ":" + seg[1:len(seg)-1]
		}
	}
	return strings.Join(segments, "/")
}
