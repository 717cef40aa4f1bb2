package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func fetch(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	return string(body)
}

func TestServeMetrics(t *testing.T) {
	t.Parallel()
	reg := newRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "declsync_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := serveMetrics(ctx, "127.0.0.1:0", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("serveMetrics: %v", err)
	}

	body := fetch(t, "http://"+addr.String()+"/metrics")
	if !strings.Contains(body, "declsync_test_total 3") {
		t.Errorf("missing counter in:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("missing runtime metrics in:\n%s", body)
	}
}

func TestServeMetricsBadAddress(t *testing.T) {
	t.Parallel()
	_, err := serveMetrics(context.Background(), "not-an-address", newRegistry(), slog.Default())
	if err == nil {
		t.Fatal("expected listen error")
	}
}
