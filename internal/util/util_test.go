package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "http://secure.local:3128", "query.wikidata.org")

	tests := []struct {
		target string
		want   string
	}{
		{"http://example.org/", "http://proxy.local:3128"},
		{"https://en.wikipedia.org/wiki/Kharkiv", "http://secure.local:3128"},
		{"https://query.wikidata.org/sparql", ""},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.target)
		got, err := proxy(&http.Request{URL: u})
		if err != nil {
			t.Fatalf("proxy(%s): %v", tt.target, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("proxy(%s) = %q, want %q", tt.target, gotStr, tt.want)
		}
	}
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport("", "", "")
	if tr.Proxy == nil {
		t.Error("expected environment proxy func")
	}
}

func TestRobotsChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /w/\nCrawl-delay: 2\n")
	}))
	defer server.Close()

	checker := NewRobotsChecker("currentevents/0.1", 5*time.Second, nil)
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, server.URL+"/wiki/Kharkiv")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if !allowed {
		t.Error("article path should be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("crawl delay = %v, want 2s", delay)
	}
	if checker.IsAllowed(ctx, server.URL+"/w/index.php?title=Kharkiv&action=edit") {
		t.Error("/w/ should be disallowed")
	}
}

func TestRobotsChecker_Missing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewRobotsChecker("currentevents/0.1", 5*time.Second, nil)
	if !checker.IsAllowed(context.Background(), server.URL+"/anything") {
		t.Error("missing robots.txt should allow everything")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	if got := NormalizeUserAgent("currentevents/0.1 (+https://github.com/ppiankov/currentevents)"); got != "currentevents" {
		t.Errorf("NormalizeUserAgent = %q", got)
	}
}
