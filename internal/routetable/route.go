package routetable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FilterRef names one pipeline stage attached to a route, with its raw
// configuration arguments from the route blob.
type FilterRef struct {
	Name string
	Args map[string]any
}

// StringArg returns the named argument as a string, or def when absent.
func (f FilterRef) StringArg(key, def string) string {
	v, ok := f.Args[key]
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return def
	}
}

// IntArg returns the named argument as an int64, or def when absent or
// not a number.
func (f FilterRef) IntArg(key string, def int64) int64 {
	v, ok := f.Args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

// Route is one immutable routing rule: a path predicate, an optional method
// set, an upstream target, and the ordered filter refs to run before
// forwarding. Lower Order wins when multiple routes match.
type Route struct {
	ID      string
	URI     string
	Order   int
	Pattern string
	Methods []string
	Filters []FilterRef
}

// AllowsMethod reports whether the route accepts the given HTTP method.
// A route with no method predicate accepts everything.
func (r *Route) AllowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// IsPrefix reports whether the path pattern is a trailing-wildcard prefix
// pattern such as /api/**.
func (r *Route) IsPrefix() bool {
	return strings.HasSuffix(r.Pattern, "/**")
}

// PrefixBase returns the pattern with the trailing /** removed.
func (r *Route) PrefixBase() string {
	return strings.TrimSuffix(r.Pattern, "/**")
}

// routeDef mirrors one element of the configuration blob.
type routeDef struct {
	ID         string         `json:"id"`
	URI        string         `json:"uri"`
	Order      int            `json:"order"`
	Predicates []predicateDef `json:"predicates"`
	Filters    []filterDef    `json:"filters"`
}

type predicateDef struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

type filterDef struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ParseBlob decodes a configuration blob (a JSON array of route definitions)
// into routes. The whole blob is rejected on a JSON error; individual
// definitions missing an id, uri, or Path predicate are returned separately
// as per-item errors so callers can log and skip them.
func ParseBlob(blob string) ([]*Route, []error, error) {
	var defs []routeDef
	if err := json.Unmarshal([]byte(blob), &defs); err != nil {
		return nil, nil, fmt.Errorf("decode route blob: %w", err)
	}

	routes := make([]*Route, 0, len(defs))
	var itemErrs []error
	for i, def := range defs {
		route, err := buildRoute(def)
		if err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("route %d (id %q): %w", i, def.ID, err))
			continue
		}
		routes = append(routes, route)
	}
	return routes, itemErrs, nil
}

func buildRoute(def routeDef) (*Route, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(def.URI) == "" {
		return nil, fmt.Errorf("missing uri")
	}

	route := &Route{
		ID:    def.ID,
		URI:   def.URI,
		Order: def.Order,
	}

	for _, p := range def.Predicates {
		switch p.Name {
		case "Path":
			pattern := strings.TrimSpace(p.Args["pattern"])
			if pattern == "" {
				return nil, fmt.Errorf("Path predicate missing pattern")
			}
			if !strings.HasPrefix(pattern, "/") {
				return nil, fmt.Errorf("path pattern %q must start with /", pattern)
			}
			route.Pattern = pattern
		case "Method":
			for _, m := range strings.Split(p.Args["methods"], ",") {
				if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
					route.Methods = append(route.Methods, m)
				}
			}
		default:
			return nil, fmt.Errorf("unsupported predicate %q", p.Name)
		}
	}
	if route.Pattern == "" {
		return nil, fmt.Errorf("missing Path predicate")
	}

	for _, f := range def.Filters {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("filter with empty name")
		}
		route.Filters = append(route.Filters, FilterRef{Name: name, Args: f.Args})
	}
	return route, nil
}
