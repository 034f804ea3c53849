package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/registry"
	"github.com/milkpudding/gateway/internal/routetable"
)

func newForwarder() *Forwarder {
	return New(config.UpstreamConfig{Timeout: 5 * time.Second}, nil)
}

func TestForwardStreamsResponse(t *testing.T) {
	var gotPath, gotXFF, gotUserID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotUserID = r.Header.Get("X-User-Id")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "upstream body")
	}))
	defer upstream.Close()

	route := &routetable.Route{ID: "test", URI: upstream.URL}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/42", strings.NewReader("payload"))
	req.RemoteAddr = "203.0.113.9:51000"
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()

	if err := newForwarder().Forward(rec, req, route); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "upstream body" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream header not copied back")
	}
	if gotPath != "/api/v1/users/42" {
		t.Errorf("upstream path = %q, want /api/v1/users/42", gotPath)
	}
	if gotXFF != "203.0.113.9" {
		t.Errorf("X-Forwarded-For = %q, want 203.0.113.9", gotXFF)
	}
	if gotUserID != "u1" {
		t.Errorf("X-User-Id = %q, want u1 (identity headers must survive)", gotUserID)
	}
}

func TestForwardConnectionRefused(t *testing.T) {
	// Bind and immediately close a port so nothing listens on it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	route := &routetable.Route{ID: "dead", URI: "http://" + addr}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	err = newForwarder().Forward(rec, req, route)
	if err == nil {
		t.Fatal("Forward to closed port succeeded")
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %T %v, want *net.OpError", err, err)
	}
}

func TestForwardTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()

	f := New(config.UpstreamConfig{Timeout: 50 * time.Millisecond}, nil)
	route := &routetable.Route{ID: "slow", URI: upstream.URL}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	err := f.Forward(rec, req, route)
	if err == nil {
		t.Fatal("Forward did not time out")
	}
	var netErr net.Error
	if !errors.Is(err, context.DeadlineExceeded) && !(errors.As(err, &netErr) && netErr.Timeout()) {
		t.Fatalf("error = %v, want a timeout", err)
	}
}

func TestForwardCancelledOnClientDisconnect(t *testing.T) {
	started := make(chan struct{})
	upstreamSawCancel := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(upstreamSawCancel)
		case <-time.After(5 * time.Second):
		}
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(ctx)
	route := &routetable.Route{ID: "hanging", URI: upstream.URL}

	errCh := make(chan error, 1)
	go func() {
		errCh <- newForwarder().Forward(httptest.NewRecorder(), req, route)
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Forward error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Forward kept running after the client went away")
	}

	select {
	case <-upstreamSawCancel:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream never observed the cancellation")
	}
}

func TestForwardResolvesLogicalService(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg, err := registry.NewStaticRegistry(map[string]string{"user-service": upstream.URL})
	if err != nil {
		t.Fatal(err)
	}
	f := New(config.UpstreamConfig{Timeout: 5 * time.Second}, reg)

	route := &routetable.Route{ID: "users", URI: "lb://user-service"}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := httptest.NewRecorder()

	if err := f.Forward(rec, req, route); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestForwardUnknownService(t *testing.T) {
	reg, _ := registry.NewStaticRegistry(nil)
	f := New(config.UpstreamConfig{Timeout: time.Second}, reg)

	route := &routetable.Route{ID: "ghost", URI: "lb://ghost-service"}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	err := f.Forward(httptest.NewRecorder(), req, route)
	if !errors.Is(err, registry.ErrServiceNotFound) {
		t.Fatalf("error = %v, want ErrServiceNotFound", err)
	}
}

func TestForwardPreservesEncodedPathSegments(t *testing.T) {
	var gotRequestURI string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestURI = r.RequestURI
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	route := &routetable.Route{ID: "files", URI: upstream.URL}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/a%2Fb", nil)
	rec := httptest.NewRecorder()

	if err := newForwarder().Forward(rec, req, route); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotRequestURI != "/api/v1/files/a%2Fb" {
		t.Errorf("upstream request URI = %q, want /api/v1/files/a%%2Fb", gotRequestURI)
	}
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	var gotConnection string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConnection = r.Header.Get("Proxy-Connection")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	route := &routetable.Route{ID: "test", URI: upstream.URL}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Proxy-Connection", "keep-alive")

	if err := newForwarder().Forward(httptest.NewRecorder(), req, route); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotConnection != "" {
		t.Errorf("Proxy-Connection forwarded as %q, want stripped", gotConnection)
	}
}
