//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestLiveness(t *testing.T) {
	resp := doGet(t, "/livez")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("livez status = %d, want 200", resp.StatusCode)
	}

	var health healthResponse
	decodeInto(t, resp, &health)

	if health.Status != "ok" {
		t.Errorf("livez status = %q, want ok", health.Status)
	}
}

func TestReadiness(t *testing.T) {
	resp := doGet(t, "/readyz")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", resp.StatusCode)
	}

	var health healthResponse
	decodeInto(t, resp, &health)

	if health.Status != "ok" {
		t.Errorf("readyz status = %q, want ok", health.Status)
	}
	if _, ok := health.Checks["postgres"]; !ok {
		t.Errorf("readyz missing postgres check: %v", health.Checks)
	}
}
