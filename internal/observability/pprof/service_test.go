package pprof

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "motionrt/pkg/logx"
)

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.10:6060", false},
		{"no-port", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestWithAuth(t *testing.T) {
	t.Parallel()
	handler := withAuth("s3cret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "bearer ok", header: "Bearer s3cret", want: http.StatusOK},
		{name: "bearer wrong", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "query ok", query: "s3cret", want: http.StatusOK},
		{name: "query wrong", query: "nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.query != "" {
				q := req.URL.Query()
				q.Set("token", tt.query)
				req.URL.RawQuery = q.Encode()
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWithAuthEmptyTokenPassesThrough(t *testing.T) {
	t.Parallel()
	called := false
	handler := withAuth("  ", func(http.ResponseWriter, *http.Request) { called = true })
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("empty token must not require auth")
	}
}

func TestServiceServesHealthz(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		t.Fatal("service did not start")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestServiceRefusesInsecureNonLoopback(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		t.Fatal("service started on a non-loopback addr without token or allow_insecure")
	}
}

func TestReconfigureStopsWhenDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop())
	s.Start(ctx)

	s.Reconfigure(ctx, Config{Enabled: false})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		t.Fatal("Reconfigure(disabled) left the server running")
	}
}
