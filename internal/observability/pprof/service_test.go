package pprof

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "homecontrold/pkg/logx"
)

func authStatus(t *testing.T, token string, decorate func(*http.Request)) int {
	t.Helper()
	s := New(Config{Enabled: true, Token: token}, logx.Nop())
	h := s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	decorate(req)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec.Code
}

func TestWithAuth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		token    string
		decorate func(*http.Request)
		want     int
	}{
		{
			name:     "no token configured passes through",
			decorate: func(*http.Request) {},
			want:     http.StatusOK,
		},
		{
			name:     "missing credentials rejected",
			token:    "s3cret",
			decorate: func(*http.Request) {},
			want:     http.StatusUnauthorized,
		},
		{
			name:  "bearer header accepted",
			token: "s3cret",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer s3cret")
			},
			want: http.StatusOK,
		},
		{
			name:  "bare token without bearer prefix rejected",
			token: "s3cret",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "s3cret")
			},
			want: http.StatusUnauthorized,
		},
		{
			name:  "wrong bearer token rejected",
			token: "s3cret",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer nope")
			},
			want: http.StatusUnauthorized,
		},
		{
			name:  "query token accepted",
			token: "s3cret",
			decorate: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "s3cret")
				r.URL.RawQuery = q.Encode()
			},
			want: http.StatusOK,
		},
		{
			name:  "wrong query token rejected",
			token: "s3cret",
			decorate: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "nope")
				r.URL.RawQuery = q.Encode()
			},
			want: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := authStatus(t, tc.token, tc.decorate); got != tc.want {
				t.Fatalf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNonLoopbackBindRequiresToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:6060"}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Run(ctx); err == nil {
		t.Fatal("tokenless non-loopback bind must be refused")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.0.0.5:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
