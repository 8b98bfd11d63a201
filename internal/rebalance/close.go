package rebalance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/errs"
	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/txbuilder"
)

// closeTick runs one tick of the close executor (spec.md §4.6.3). The
// mode gate short-circuits it entirely when the engine is passive.
func (e *Engine) closeTick(ctx context.Context) error {
	snap := e.store.Snapshot()
	if !snap.Active || snap.PositionToClose == nil {
		return nil
	}
	p := *snap.PositionToClose

	if tickerPrice := e.ticker.CurrentPrice(); tickerPrice != 0 {
		_, shouldRebalance := p.ClassifyRange(tickerPrice, time.Now())
		if !shouldRebalance {
			log.Info().Str("address", p.Address).Msg("price returned into range before close, aborting")
			e.store.ClearPositionToClose()
			return nil
		}
	}

	quote, err := e.amm.ClosePositionInstructions(ctx, p.PositionMint, p.WalletKey, nil, closeQuoteSlippageBps)
	if err != nil {
		e.handleCloseFailure(p, err)
		return nil
	}

	signature, err := e.builder.Submit(ctx, quote.Instructions, quote.AdditionalSigners, txbuilder.PriorityLevel{Kind: txbuilder.PriorityHigh})
	if err != nil {
		e.handleCloseFailure(p, err)
		return nil
	}

	log.Info().Str("address", p.Address).Str("signature", signature).Msg("position closed")
	e.store.ClearPositionToClose()
	e.store.SetPositionToOpen(position.FromManagedPosition(p))
	return nil
}

// handleCloseFailure applies spec.md §4.6.3 step 3's failure policy:
// an on-chain-state-missing error means the position is already gone,
// so it is dropped (reconciliation will reap it from the managed set
// on its next cycle); any other error leaves position_to_close set so
// the next tick retries.
func (e *Engine) handleCloseFailure(p position.ManagedPosition, err error) {
	if errs.Classify(err) == errs.KindOnChainStateMissing {
		log.Warn().Err(err).Str("address", p.Address).Msg("position already closed on-chain, clearing close slot")
		e.store.ClearPositionToClose()
		return
	}
	log.Error().Err(err).Str("address", p.Address).Msg("close attempt failed, will retry next tick")
}
