package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func healthServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		healthy bool
	}{
		{"healthy body", 200, `{"service":"related","status":"healthy"}`, true},
		{"ok body", 200, `{"status":"ok"}`, true},
		{"non-json 200", 200, `fine`, true},
		{"degraded body", 200, `{"status":"degraded"}`, false},
		{"server error", 500, `{"detail":"boom"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(tt.status, tt.body)
			defer srv.Close()

			res := NewChecker(time.Second).Check(context.Background(), srv.URL)
			if res.Err != nil {
				t.Fatalf("Check() error = %v", res.Err)
			}
			if res.Healthy != tt.healthy {
				t.Errorf("Healthy = %v, want %v", res.Healthy, tt.healthy)
			}
			if res.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestCheck_Dependencies(t *testing.T) {
	srv := healthServer(200, `{"service":"suggestion","status":"healthy","dependencies":{"related":"healthy"}}`)
	defer srv.Close()

	res := NewChecker(time.Second).Check(context.Background(), srv.URL+"/")
	if res.Body == nil || res.Body.Service != "suggestion" {
		t.Fatalf("Body = %+v", res.Body)
	}
	if !strings.Contains(res.Detail(), "related=healthy") {
		t.Errorf("Detail() = %q", res.Detail())
	}
}

func TestCheck_Unreachable(t *testing.T) {
	srv := healthServer(200, `{}`)
	url := srv.URL
	srv.Close()

	res := NewChecker(200 * time.Millisecond).Check(context.Background(), url)
	if res.Healthy || res.Err == nil {
		t.Fatalf("Check() on closed server = %+v", res)
	}
	if !strings.Contains(res.Detail(), "unreachable") {
		t.Errorf("Detail() = %q", res.Detail())
	}
}

func TestWaitHealthy_BecomesHealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := NewChecker(time.Second).WaitHealthy(ctx, srv.URL, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitHealthy() error = %v", err)
	}
	if !res.Healthy || calls.Load() < 3 {
		t.Errorf("res = %+v after %d calls", res, calls.Load())
	}
}

func TestWaitHealthy_Timeout(t *testing.T) {
	srv := healthServer(503, `{}`)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := NewChecker(time.Second).WaitHealthy(ctx, srv.URL, 10*time.Millisecond); err == nil {
		t.Fatal("WaitHealthy() should time out")
	}
}

func TestCheckAll_PreservesOrder(t *testing.T) {
	up := healthServer(200, `{"status":"healthy"}`)
	defer up.Close()
	down := healthServer(500, `{}`)
	defer down.Close()

	results := NewChecker(time.Second).CheckAll(context.Background(), []Target{
		{Name: "suggestion", BaseURL: up.URL},
		{Name: "related", BaseURL: down.URL},
	})

	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Name != "suggestion" || !results[0].Healthy {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Name != "related" || results[1].Healthy {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestCheckAll_CancelledContext(t *testing.T) {
	up := healthServer(200, `{"status":"healthy"}`)
	defer up.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewChecker(time.Second).CheckAll(ctx, []Target{
		{Name: "suggestion", BaseURL: up.URL},
		{Name: "related", BaseURL: up.URL},
	})
	for _, res := range results {
		if res.Healthy || res.Err == nil {
			t.Errorf("%s = %+v, want unhealthy with an error", res.Name, res)
		}
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8000, "http://127.0.0.1:8000"},
		{"", 8001, "http://127.0.0.1:8001"},
		{"10.0.0.5", 8002, "http://10.0.0.5:8002"},
		{"::1", 8000, "http://[::1]:8000"},
	}

	for _, tt := range tests {
		if got := BaseURL(tt.host, tt.port); got != tt.want {
			t.Errorf("BaseURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
