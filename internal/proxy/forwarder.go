package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/registry"
	"github.com/milkpudding/gateway/internal/routetable"
)

// Forwarder sends matched requests to their upstream target and streams
// the response back verbatim.
type Forwarder struct {
	transport http.RoundTripper
	resolver  registry.Registry
	timeout   time.Duration
}

// New creates a forwarder. resolver may be nil when no lb:// targets are
// configured.
func New(cfg config.UpstreamConfig, resolver registry.Registry) *Forwarder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		transport: &http.Transport{
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		},
		resolver: resolver,
		timeout:  timeout,
	}
}

// SetTransport replaces the outbound transport, used by tests.
func (f *Forwarder) SetTransport(rt http.RoundTripper) {
	f.transport = rt
}

// Forward proxies the request to the route's upstream. Failures are
// returned to the caller for translation rather than written here.
// The upstream call carries the request context so a client disconnect
// aborts it.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route *routetable.Route) error {
	target, err := f.resolveTarget(r.Context(), route)
	if err != nil {
		return err
	}

	ctx := r.Context()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.transport.RoundTrip(buildRequest(ctx, r, target))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
	return nil
}

// resolveTarget turns the route's URI into a concrete upstream URL,
// consulting the registry for lb:// targets.
func (f *Forwarder) resolveTarget(ctx context.Context, route *routetable.Route) (*url.URL, error) {
	if service, ok := registry.ServiceName(route.URI); ok {
		if f.resolver == nil {
			return nil, fmt.Errorf("%w: no registry configured for %s", registry.ErrServiceNotFound, service)
		}
		inst, err := f.resolver.Resolve(ctx, service)
		if err != nil {
			return nil, err
		}
		return url.Parse(inst.URL())
	}

	target, err := url.Parse(route.URI)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("route %s: invalid upstream uri %q", route.ID, route.URI)
	}
	return target, nil
}

// buildRequest constructs the outbound request directly, avoiding a
// URL.String() + url.Parse() round-trip. The inbound path is forwarded
// unmodified onto the target's base path.
func buildRequest(ctx context.Context, r *http.Request, target *url.URL) *http.Request {
	outURL := *target
	outURL.Path = singleJoiningSlash(target.Path, r.URL.Path)
	if r.URL.RawPath != "" {
		// Preserve percent-encoded segments (e.g. %2F) verbatim.
		outURL.RawPath = singleJoiningSlash(target.EscapedPath(), r.URL.RawPath)
	}
	outURL.RawQuery = r.URL.RawQuery

	out := (&http.Request{
		Method:        r.Method,
		URL:           &outURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
	}).WithContext(ctx)

	out.Header = make(http.Header, len(r.Header)+3)
	for k, vv := range r.Header {
		out.Header[k] = vv
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			out.Header.Set("X-Forwarded-For", prior+", "+host)
		} else {
			out.Header.Set("X-Forwarded-For", host)
		}
	}
	if r.TLS != nil {
		out.Header.Set("X-Forwarded-Proto", "https")
	} else {
		out.Header.Set("X-Forwarded-Proto", "http")
	}
	out.Header.Set("X-Forwarded-Host", r.Host)

	removeHopHeaders(out.Header)
	return out
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)
}

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// singleJoiningSlash joins two URL paths with exactly one slash between.
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
