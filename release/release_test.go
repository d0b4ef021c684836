package release

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, body string) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestCheckNewer(t *testing.T) {
	url := serve(t, `{"tag_name":"v1.2.0","body":"security fix"}`)
	info, err := Check(context.Background(), "1.0.0", url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Newer {
		t.Fatalf("expected update available")
	}
	if info.Version != "1.2.0" {
		t.Fatalf("unexpected latest version: %s", info.Version)
	}
	if !info.Security() {
		t.Fatalf("expected security release, notes %q", info.Notes)
	}
}

func TestCheckNotNewer(t *testing.T) {
	url := serve(t, `{"tag_name":"v1.2.0","body":""}`)
	for _, current := range []string{"1.2.0", "v1.2.0", "1.10.0"} {
		info, err := Check(context.Background(), current, url)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Newer {
			t.Fatalf("did not expect update from %s", current)
		}
	}
}

func TestCheckBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer ts.Close()
	if _, err := Check(context.Background(), "1.0.0", ts.URL); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2", "1.2.0", 0},
		{"0.4.0-dev", "0.4.0", -1},
		{"0.4.0", "0.4.0-dev", 1},
		{"0.10.0", "0.9.3", 1},
	}
	for _, c := range cases {
		if got := compareVersions(c.a, c.b); got != c.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
