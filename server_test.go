package main

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

// noRedirect keeps 302 responses visible to the test.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := noRedirect.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestPublicPages(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"/login", http.StatusOK, "text/html", `name="csrf_token"`},
		{"/style.css", http.StatusOK, "text/css", "--brand"},
		{"/favicon.svg", http.StatusOK, "image/svg+xml", "#E6007E"},
		{"/missing.css", http.StatusFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.HasPrefix(resp.Header.Get("Content-Type"), tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
			if resp.Header.Get("X-Frame-Options") != "DENY" {
				t.Error("security headers missing")
			}
		})
	}
}

func TestDashboardNeedsSession(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, path := range []string{"/", "/app.js", "/ws"} {
		resp, _ := get(t, ts.URL+path)
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
			t.Errorf("%s: status %d location %q, want redirect to /login",
				path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestLoginRejectsMissingCSRF(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := noRedirect.PostForm(ts.URL+"/login", map[string][]string{
		"username": {"admin"},
		"password": {"admin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
