//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestHealthLiveness(t *testing.T) {
	resp, env := doJSON(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status 'ok', got %q", body.Status)
	}
}

func TestReadiness(t *testing.T) {
	resp, env := doJSON(t, http.MethodGet, "/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (error %q)", resp.StatusCode, env.Error)
	}

	var checks map[string]string
	if err := json.Unmarshal(env.Data, &checks); err != nil {
		t.Fatalf("decode checks: %v", err)
	}
	if checks["postgres"] != "ok" {
		t.Fatalf("expected postgres check 'ok', got %q", checks["postgres"])
	}
}

// Health endpoints are reachable without credentials; they must not reveal
// configuration details like connection strings.
func TestHealthRequiresNoAuthAndLeaksNothing(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		req, err := http.NewRequest(http.MethodGet, testServer.URL+path, http.NoBody)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			t.Errorf("%s demands authentication", path)
		}
	}

	_, env := doJSON(t, http.MethodGet, "/ready", "", nil)
	raw, _ := json.Marshal(env)
	for _, needle := range []string{"postgres://", "password", "@localhost:5432"} {
		if strings.Contains(string(raw), needle) {
			t.Errorf("readiness body leaks %q", needle)
		}
	}
}
