package debugapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clp-rebalancer/internal/health"
	"clp-rebalancer/internal/position"
)

type fakePositionSource struct {
	positions []position.ManagedPosition
}

func (f fakePositionSource) GetManagedPositions() []position.ManagedPosition {
	return f.positions
}

func TestHealthzReportsOK(t *testing.T) {
	server := NewServer("0.0.0.0", 0, fakePositionSource{}, nil)

	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestDebugPositionsDumpsManagedSet(t *testing.T) {
	source := fakePositionSource{positions: []position.ManagedPosition{
		{Address: "Pos1", WalletKey: "Wallet1"},
	}}
	server := NewServer("0.0.0.0", 0, source, nil)

	req, _ := http.NewRequest("GET", "/debug/positions", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Positions []position.ManagedPosition `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Positions) != 1 || body.Positions[0].Address != "Pos1" {
		t.Fatalf("expected the single managed position to round-trip, got %+v", body.Positions)
	}
}

func TestHealthzReportsDegradedWhenADependencyIsDown(t *testing.T) {
	amm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer amm.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checker := health.NewChecker("http://127.0.0.1:1", amm.URL)
	checker.Start(ctx)
	server := NewServer("0.0.0.0", 0, fakePositionSource{}, checker)

	req, _ := http.NewRequest("GET", "/healthz", nil)
	resp, err := server.app.Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "degraded" {
		t.Fatalf("expected status degraded when rpc is unreachable, got %v", body["status"])
	}
}
