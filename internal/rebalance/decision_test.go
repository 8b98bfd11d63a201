package rebalance

import (
	"context"
	"fmt"
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

// fakePoolServer answers every CLPPool request (GET /pool?...) with a
// fixed price, and fails any other path — enough for the decision
// loop's pool-price double-check.
func fakePoolServer(t *testing.T, price float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pool" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"price":%f,"sqrt_price":"0","tick_spacing":64,"token_mint_a":"MintA","token_mint_b":"MintB","pool_address":"Pool1"}`, price)
	}))
}

func testEngine(t *testing.T, ammURL string, active bool) *Engine {
	t.Helper()
	store := position.New(active, "ProgWallet")
	amm := ammclient.New(ammURL, nil, time.Second)
	ticker := priceclient.NewTicker()
	tokens := token.NewStore(func(ctx context.Context, mint string) (token.Token, error) {
		return token.Token{MintAddress: mint, Decimals: 9}, nil
	})
	return New(store, amm, nil, ticker, tokens, rpcfanout.Mode{}, rpcfanout.Mode{}, "ProgWallet")
}

func rangedPosition(address string) position.ManagedPosition {
	return position.ManagedPosition{
		Address:    address,
		WalletKey:  "ProgWallet",
		PoolType:   position.PoolOrca,
		CreatedAt:  time.Now().Add(-time.Hour),
		RangeLower: 100,
		RangeUpper: 110,
		TokenA:     &position.TokenRef{MintAddress: "MintA", Decimals: 9},
		TokenB:     &position.TokenRef{MintAddress: "MintB", Decimals: 6},
	}
}

func TestDecisionQueuesCloseWhenBothTickerAndPoolAgreeOutOfRange(t *testing.T) {
	srv := fakePoolServer(t, 95)
	defer srv.Close()

	e := testEngine(t, srv.URL, true)
	e.store.ReplacePositions([]position.ManagedPosition{rangedPosition("Pos1")}, nil)
	e.ticker.Update(95, time.Now())

	if err := e.decisionTick(context.Background()); err != nil {
		t.Fatalf("decisionTick: %v", err)
	}

	snap := e.store.Snapshot()
	if snap.PositionToClose == nil || snap.PositionToClose.Address != "Pos1" {
		t.Fatalf("expected position_to_close = Pos1, got %+v", snap.PositionToClose)
	}
}

func TestDecisionAbortsFalseAlarmWhenPoolStillInRange(t *testing.T) {
	srv := fakePoolServer(t, 105)
	defer srv.Close()

	e := testEngine(t, srv.URL, true)
	e.store.ReplacePositions([]position.ManagedPosition{rangedPosition("Pos1")}, nil)
	e.ticker.Update(95, time.Now())

	if err := e.decisionTick(context.Background()); err != nil {
		t.Fatalf("decisionTick: %v", err)
	}

	if e.store.Snapshot().PositionToClose != nil {
		t.Fatalf("expected no close queued when pool price disagrees with ticker")
	}
}

func TestDecisionInRangeHighEdgeTriggersAfterAge(t *testing.T) {
	srv := fakePoolServer(t, 111)
	defer srv.Close()

	e := testEngine(t, srv.URL, true)
	p := rangedPosition("Pos1")
	p.CreatedAt = time.Now().Add(-120 * time.Second)
	e.store.ReplacePositions([]position.ManagedPosition{p}, nil)
	e.ticker.Update(109.9, time.Now())

	if err := e.decisionTick(context.Background()); err != nil {
		t.Fatalf("decisionTick: %v", err)
	}

	snap := e.store.Snapshot()
	if snap.PositionToClose == nil || snap.PositionToClose.Address != "Pos1" {
		t.Fatalf("expected scenario-4 rebalance to queue a close, got %+v", snap.PositionToClose)
	}
}

func TestDecisionSkipsEntirelyWhileRebalancing(t *testing.T) {
	e := testEngine(t, "http://unreachable.invalid", true)
	e.store.ReplacePositions([]position.ManagedPosition{rangedPosition("Pos1")}, nil)
	e.ticker.Update(95, time.Now())
	e.store.SetPositionToOpen(position.NewProgrammaticPosition{PoolAddress: "Pool1"})

	if err := e.decisionTick(context.Background()); err != nil {
		t.Fatalf("decisionTick: %v", err)
	}
	if e.store.Snapshot().PositionToClose != nil {
		t.Fatalf("expected decision loop to skip entirely while a rebalance slot is occupied")
	}
}

func TestRangeStateCenteredAndBoundaryEdges(t *testing.T) {
	p := rangedPosition("Pos1")
	state, should := p.ClassifyRange(105, time.Now())
	if state.Kind != position.RangeCentered || should {
		t.Fatalf("expected Centered at mid, got %v", state)
	}

	p2 := rangedPosition("Pos2")
	state2, _ := p2.ClassifyRange(100, time.Now())
	if state2.Kind != position.RangeInLower || state2.Score < 0.99 {
		t.Fatalf("expected InLower at maximal proximity at range_lower, got %v", state2)
	}
}
