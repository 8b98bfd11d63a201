package rebalance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/priceclient"
	"clp-rebalancer/internal/rpcfanout"
	"clp-rebalancer/internal/token"
)

// fakeRPCServer answers getBalance and getTokenAccountsByOwner with
// fixed amounts, enough to drive balanceTokens without a real cluster.
func fakeRPCServer(t *testing.T, lamports uint64, tokenBaseUnits string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "getBalance":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":%d}}`, lamports)
		case "getTokenAccountsByOwner":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":[{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":%q}}}}}}]}}`, tokenBaseUnits)
		default:
			t.Fatalf("unexpected rpc method %s", req.Method)
		}
	}))
}

func openTestEngine(t *testing.T, rpcURL, ammURL string) *Engine {
	t.Helper()
	store := position.New(true, "Wallet1")
	if ammURL == "" {
		ammURL = "http://unused.invalid"
	}
	amm := ammclient.New(ammURL, nil, time.Second)
	ticker := priceclient.NewTicker()
	tokens := token.NewStore(func(ctx context.Context, mint string) (token.Token, error) {
		return token.New("USD Coin", "USDC", mint, 6), nil
	})
	mode := rpcfanout.Mode{Kind: rpcfanout.Failover, URLs: []string{rpcURL}}
	return New(store, amm, nil, ticker, tokens, mode, mode, "Wallet1")
}

func TestBalanceTokensAbortsOnZeroBalance(t *testing.T) {
	rpcSrv := fakeRPCServer(t, 0, "0")
	defer rpcSrv.Close()

	e := openTestEngine(t, rpcSrv.URL, "")
	n := position.NewProgrammaticPosition{
		PoolAddress: "Pool1",
		TokenMintA:  token.Solana().MintAddress,
		TokenMintB:  "MintB",
	}
	data := &openPositionData{}
	data.setPoolPrice(100)

	_, err := e.balanceTokens(context.Background(), n, data)
	if err != ErrZeroBalance {
		t.Fatalf("expected ErrZeroBalance, got %v", err)
	}
}

func TestBalanceTokensSkipsSwapWhenAlreadyWithinTolerance(t *testing.T) {
	// 1 SOL (minus the 0.1 SOL fee reserve = 0.9 SOL) at price 100 is
	// worth 90 USD; 90 USDC base units (6 decimals) is also 90 USD —
	// an exact 50/50 split, inside the 45-55% band.
	rpcSrv := fakeRPCServer(t, 1_000_000_000, "90000000")
	defer rpcSrv.Close()

	e := openTestEngine(t, rpcSrv.URL, "")
	n := position.NewProgrammaticPosition{
		PoolAddress: "Pool1",
		TokenMintA:  token.Solana().MintAddress,
		TokenMintB:  "MintB",
	}
	data := &openPositionData{}
	data.setPoolPrice(100)

	result, err := e.balanceTokens(context.Background(), n, data)
	if err != nil {
		t.Fatalf("balanceTokens: %v", err)
	}
	if result.Swapped {
		t.Fatalf("expected no swap when already within tolerance, got %+v", result)
	}
	const epsilon = 1e-9
	if diff := result.RangeLower - 99; diff > epsilon || diff < -epsilon {
		t.Fatalf("expected range_lower ~99, got %+v", result)
	}
	if diff := result.RangeUpper - 101; diff > epsilon || diff < -epsilon {
		t.Fatalf("expected range_upper ~101, got %+v", result)
	}
}

func TestPrimePoolPriceResolvesTickSpacingFromPoolAddress(t *testing.T) {
	ammSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/pool/Pool1/tokens":
			w.Write([]byte(`{"token_mint_a":"MintA","token_mint_b":"MintB","tick_spacing":64}`))
		case "/pool":
			if got := r.URL.Query().Get("tick_spacing"); got != "64" {
				t.Fatalf("expected tick_spacing 64 resolved from the pool address, got %q", got)
			}
			w.Write([]byte(`{"price":123.5,"sqrt_price":"0","tick_spacing":64,"token_mint_a":"MintA","token_mint_b":"MintB","pool_address":"Pool1"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ammSrv.Close()

	e := openTestEngine(t, "http://unused.invalid", ammSrv.URL)
	n := position.NewProgrammaticPosition{PoolAddress: "Pool1", TokenMintA: "MintA", TokenMintB: "MintB"}
	data := &openPositionData{}

	if err := e.primePoolPrice(context.Background(), n, data); err != nil {
		t.Fatalf("primePoolPrice: %v", err)
	}
	if got := data.getPoolPrice(); got != 123.5 {
		t.Fatalf("expected primed pool price 123.5, got %v", got)
	}
}
