// Package rebalance wires C1-C5 together into the four supervising
// loops (C6) that reconcile on-chain state, decide when a managed
// position has drifted out of range, and execute the close/reopen
// cycle that recentres it.
package rebalance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/priceclient"
	"clp-rebalancer/internal/rpcfanout"
	"clp-rebalancer/internal/token"
	"clp-rebalancer/internal/txbuilder"
)

const (
	reconciliationPeriod = 30 * time.Second
	decisionPeriod       = 1 * time.Second
	closeExecutorPeriod  = 1 * time.Second
	openExecutorPeriod   = 1 * time.Second

	closeQuoteSlippageBps = 100
	openSlippageBps       = 500
	swapSlippageBps       = 50
)

// Engine is the single process-wide context the four loops share,
// replacing the original source's deferred-init global cells per
// spec.md §9's re-architecture note.
type Engine struct {
	store   *position.Store
	amm     *ammclient.Client
	builder *txbuilder.Builder
	ticker  *priceclient.Ticker
	tokens  *token.Store

	volumeRPC rpcfanout.Mode
	speedRPC  rpcfanout.Mode

	walletAddress string

	openMu sync.Mutex

	// Notifications is the outbound mpsc channel of capacity 100 the
	// external router drains, fed by the notification forwarder.
	Notifications chan position.PoolManagerMessage
}

// New constructs an Engine. volumeRPC and speedRPC are typically
// rpcfanout.VolumePriority() and rpcfanout.SpeedPriority()
// respectively; walletAddress is the programmatic wallet's base58
// address, used as the default signer for instruction requests this
// engine issues on its own initiative (swaps, opens, closes).
func New(
	store *position.Store,
	amm *ammclient.Client,
	builder *txbuilder.Builder,
	ticker *priceclient.Ticker,
	tokens *token.Store,
	volumeRPC, speedRPC rpcfanout.Mode,
	walletAddress string,
) *Engine {
	return &Engine{
		store:         store,
		amm:           amm,
		builder:       builder,
		ticker:        ticker,
		tokens:        tokens,
		volumeRPC:     volumeRPC,
		speedRPC:      speedRPC,
		walletAddress: walletAddress,
		Notifications: make(chan position.PoolManagerMessage, 100),
	}
}

// Start launches the four supervising loops plus the stats and
// notification-forwarder tasks, all cancelled by ctx.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx, reconciliationPeriod, e.reconcileOnce)
	go e.loop(ctx, decisionPeriod, e.decisionTick)
	go e.loop(ctx, closeExecutorPeriod, e.closeTick)
	go e.loop(ctx, openExecutorPeriod, e.openTick)
	go e.statsLoop(ctx)
	go e.notifyForwarder(ctx)
}

// loop runs tick on every period until ctx is cancelled, logging and
// continuing past any returned error — per spec.md §5, every loop is
// an infinite `loop { tick().await }` with no cooperative cancellation
// token beyond ctx.
func (e *Engine) loop(ctx context.Context, period time.Duration, tick func(context.Context) error) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				log.Error().Err(err).Msg("rebalance loop iteration failed")
			}
		}
	}
}

// GetManagedPositions returns the full current set of managed
// positions, per spec.md §6's get_managed_positions operation.
func (e *Engine) GetManagedPositions() []position.ManagedPosition {
	return e.store.Snapshot().ManagedPositions
}

// GetPositionsForWallet is the ad-hoc, store-bypassing lookup named in
// spec.md §6: it asks C3 directly and never touches the managed set.
func (e *Engine) GetPositionsForWallet(ctx context.Context, pubkey string) ([]position.ManagedPosition, error) {
	infos, err := e.amm.PositionsForWallet(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	out := make([]position.ManagedPosition, 0, len(infos))
	for _, info := range infos {
		p, err := e.toManagedPosition(ctx, pubkey, info)
		if err != nil {
			log.Warn().Err(err).Str("address", info.Address).Msg("skipping position, failed to resolve metadata")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SetLocalWalletPubkey registers pubkey as the read-only view wallet
// and merges its current on-chain positions into the managed set.
func (e *Engine) SetLocalWalletPubkey(ctx context.Context, pubkey string) ([]position.ManagedPosition, error) {
	positions, err := e.GetPositionsForWallet(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	return e.store.SetLocalWallet(pubkey, positions), nil
}

// UnsetLocalWalletPubkey drops the read-only view wallet and every
// position it contributed.
func (e *Engine) UnsetLocalWalletPubkey() []position.ManagedPosition {
	return e.store.UnsetLocalWallet()
}

// QueueProgrammaticOpen occupies the open slot for the next tick of
// the open executor.
func (e *Engine) QueueProgrammaticOpen(n position.NewProgrammaticPosition) {
	e.store.SetPositionToOpen(n)
}

// QueueProgrammaticClose occupies the close slot for the next tick of
// the close executor.
func (e *Engine) QueueProgrammaticClose(p position.ManagedPosition) {
	e.store.SetPositionToClose(p)
}

// OpenPosition builds (but does not submit) an open-instruction
// bundle for external signing, per spec.md §6's build-only contract.
func (e *Engine) OpenPosition(ctx context.Context, wallet, pool string, amount ammclient.TokenAmount, slippageBps int, rangeLower, rangeUpper float64) (ammclient.OpenQuote, error) {
	return e.amm.OpenPositionInstructions(ctx, wallet, pool, amount, slippageBps, rangeLower, rangeUpper)
}

// ClosePosition builds (but does not submit) a close-instruction
// bundle for external signing.
func (e *Engine) ClosePosition(ctx context.Context, positionMint, wallet string, slippageBps int) (ammclient.CloseQuote, error) {
	return e.amm.ClosePositionInstructions(ctx, positionMint, wallet, nil, slippageBps)
}

// SwapTokens builds (but does not submit) a swap-instruction bundle
// for external signing.
func (e *Engine) SwapTokens(ctx context.Context, wallet, pool string, amount ammclient.SwapAmount, mintOut string, slippageBps int) (ammclient.SwapQuote, error) {
	return e.amm.SwapInstructions(ctx, wallet, pool, amount, mintOut, slippageBps)
}

// ToggleAutoRebalance flips auto_rebalance for the named position and
// returns the resulting value; it is a no-op (returns false) if the
// address is not currently managed.
func (e *Engine) ToggleAutoRebalance(address string) bool {
	var result bool
	e.store.MutatePosition(address, func(p *position.ManagedPosition) {
		p.AutoRebalance = !p.AutoRebalance
		result = p.AutoRebalance
	})
	return result
}

func pow10(exp uint8) float64 {
	result := 1.0
	for i := uint8(0); i < exp; i++ {
		result *= 10.0
	}
	return result
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
