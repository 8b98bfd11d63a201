package ammclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenAmountMarshalsTaggedUnion(t *testing.T) {
	a, err := json.Marshal(InTokenA(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a) != `{"token_a":100}` {
		t.Errorf("unexpected encoding for token A: %s", a)
	}

	b, err := json.Marshal(InTokenB(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"token_b":200}` {
		t.Errorf("unexpected encoding for token B: %s", b)
	}
}

func TestSwapAmountMarshalsTaggedUnion(t *testing.T) {
	in, err := json.Marshal(SwapAmount{Direction: ExactIn, Amount: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(in) != `{"exact_in":50}` {
		t.Errorf("unexpected encoding for exact-in: %s", in)
	}

	out, err := json.Marshal(SwapAmount{Direction: ExactOut, Amount: 75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"exact_out":75}` {
		t.Errorf("unexpected encoding for exact-out: %s", out)
	}
}

func TestPositionsForWalletRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("wallet") != "Wallet1" {
			t.Errorf("expected wallet query param, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"address":"Pos1","position_mint":"Mint1","pool_address":"Pool1","tick_spacing":64,"sqrt_price":"12345","range_lower":1.0,"range_upper":2.0}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Second)
	positions, err := c.PositionsForWallet(context.Background(), "Wallet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 || positions[0].Address != "Pos1" {
		t.Fatalf("unexpected positions: %+v", positions)
	}
	if positions[0].SqrtPrice.String() != "12345" {
		t.Errorf("expected sqrt_price to round-trip as string, got %s", positions[0].SqrtPrice.String())
	}
}

func TestOpenPositionInstructionsSendsExpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body openPositionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if body.Wallet != "Wallet1" || body.Pool != "Pool1" {
			t.Errorf("unexpected request body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"instructions":[],"additional_signers":["c2lnbmVy"],"quote":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"key1", "key2"}, time.Second)
	quote, err := c.OpenPositionInstructions(context.Background(), "Wallet1", "Pool1", InTokenB(1000), 500, 0.9, 1.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quote.AdditionalSigners) != 1 {
		t.Errorf("expected one additional signer, got %d", len(quote.AdditionalSigners))
	}
}

func TestDoGetSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Second)
	_, err := c.PositionsForWallet(context.Background(), "Wallet1")
	if err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestAPIKeyRotatesRoundRobin(t *testing.T) {
	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKeys = append(seenKeys, r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"keyA", "keyB"}, time.Second)
	for i := 0; i < 4; i++ {
		if _, err := c.PositionsForWallet(context.Background(), "W"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(seenKeys) != 4 || seenKeys[0] != "keyA" || seenKeys[1] != "keyB" || seenKeys[2] != "keyA" || seenKeys[3] != "keyB" {
		t.Errorf("expected round-robin key rotation, got %v", seenKeys)
	}
}
