package rebalance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/position"
)

// decisionTick runs one tick of the decision loop (spec.md §4.6.2): it
// skips entirely while a rebalance is already in flight, then
// classifies every programmatic-wallet position against the live
// ticker price and queues at most one close per tick.
func (e *Engine) decisionTick(ctx context.Context) error {
	if e.store.IsRebalancing() {
		return nil
	}

	tickerPrice := e.ticker.CurrentPrice()
	if tickerPrice == 0 {
		return nil
	}

	snap := e.store.Snapshot()
	if snap.ProgrammaticWalletPubkey == nil {
		return nil
	}
	programmaticWallet := *snap.ProgrammaticWalletPubkey

	for _, p := range snap.ManagedPositions {
		if p.WalletKey != programmaticWallet {
			continue
		}

		now := time.Now()
		state, shouldRebalance := p.ClassifyRange(tickerPrice, now)

		// Persist the out_of_range_start transition onto the store's
		// own copy so it survives until the next reconciliation,
		// independent of this loop's local snapshot copy.
		e.store.MutatePosition(p.Address, func(mp *position.ManagedPosition) {
			mp.ClassifyRange(tickerPrice, now)
		})

		if !shouldRebalance {
			continue
		}

		if p.TokenA == nil || p.TokenB == nil {
			continue
		}

		pool, err := e.amm.CLPPool(ctx, p.TokenA.MintAddress, p.TokenB.MintAddress, p.TickSpacing)
		if err != nil {
			log.Warn().Err(err).Str("address", p.Address).Msg("pool price double-check failed, deferring to next tick")
			continue
		}

		if pool.Price >= p.RangeLower && pool.Price <= p.RangeUpper {
			// Ticker wicked out of range but the on-chain pool never
			// followed; per spec.md §4.6.2's rationale, require both
			// to agree before queuing a close.
			continue
		}

		log.Info().Str("address", p.Address).Str("state", state.String()).Msg("queuing programmatic close")
		e.store.SetPositionToClose(p)
		return nil
	}

	return nil
}
