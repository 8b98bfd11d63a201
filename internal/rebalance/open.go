package rebalance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/token"
	"clp-rebalancer/internal/txbuilder"
)

const (
	balanceIterationCap = 4
	bufferPercent        = 0.075
	feeReserveLamports   = 100_000_000 // 0.1 SOL, per spec.md §4.6.5 step 3
	ratioToleranceLow    = 0.45
	ratioToleranceHigh   = 0.55
	rangeBandLow         = 0.99
	rangeBandHigh        = 1.01
	pricePollPeriod      = 1 * time.Second
)

// ErrZeroBalance is returned by balanceTokens when both token
// balances are zero; the open executor must abort rather than call C3
// with an undefined ratio, per spec.md §8's boundary behaviour.
var ErrZeroBalance = errors.New("balance-tokens: both balances are zero")

// openPositionData is the ephemeral scratch state primed and kept
// current during an open, mirroring spec.md §4.5's NewPositionData.
type openPositionData struct {
	poolPrice atomic.Value // float64
}

func (d *openPositionData) setPoolPrice(v float64) { d.poolPrice.Store(v) }

func (d *openPositionData) getPoolPrice() float64 {
	v, ok := d.poolPrice.Load().(float64)
	if !ok {
		return 0
	}
	return v
}

// openTick runs one tick of the open executor (spec.md §4.6.4). The
// mode gate short-circuits it when passive. A mutex prevents
// overlapping attempts: a single pass through priming, balancing, and
// submission can comfortably outlast the 1s tick period.
func (e *Engine) openTick(ctx context.Context) error {
	snap := e.store.Snapshot()
	if !snap.Active || snap.PositionToOpen == nil {
		return nil
	}

	if !e.openMu.TryLock() {
		return nil
	}
	defer e.openMu.Unlock()

	n := *snap.PositionToOpen
	data := &openPositionData{}

	stopPoll := e.startPricePoll(ctx, n, data)
	defer stopPoll()

	if err := e.primePoolPrice(ctx, n, data); err != nil {
		log.Error().Err(err).Str("pool", n.PoolAddress).Msg("failed to prime pool price for open, retrying next tick")
		return nil
	}

	result, err := e.balanceTokens(ctx, n, data)
	if err != nil {
		log.Error().Err(err).Str("pool", n.PoolAddress).Msg("balance-tokens failed, retrying next tick")
		return nil
	}

	bufferedB := result.BalanceB - uint64(float64(result.BalanceB)*bufferPercent)

	quote, err := e.amm.OpenPositionInstructions(ctx, e.walletAddress, n.PoolAddress, ammclient.InTokenB(bufferedB), openSlippageBps, result.RangeLower, result.RangeUpper)
	if err != nil {
		log.Error().Err(err).Str("pool", n.PoolAddress).Msg("open_position_instructions failed, retrying next tick")
		return nil
	}

	signature, err := e.builder.Submit(ctx, quote.Instructions, quote.AdditionalSigners, txbuilder.PriorityLevel{Kind: txbuilder.PriorityHigh})
	if err != nil {
		log.Error().Err(err).Str("pool", n.PoolAddress).Msg("open submission failed, retrying next tick")
		return nil
	}

	log.Info().Str("pool", n.PoolAddress).Str("signature", signature).Msg("position opened")
	e.store.ClearPositionToOpen()
	go func() {
		if err := e.reconcileOnce(context.Background()); err != nil {
			log.Warn().Err(err).Msg("post-open reconciliation pass failed")
		}
	}()
	return nil
}

// startPricePoll launches the background task that keeps data's pool
// price current while the open is in flight, per spec.md §4.6.4 step
// 1. It terminates either when the returned stop func is called or
// when position_to_open clears under it.
func (e *Engine) startPricePoll(ctx context.Context, n position.NewProgrammaticPosition, data *openPositionData) func() {
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(pricePollPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				if e.store.Snapshot().PositionToOpen == nil {
					return
				}
				if err := e.primePoolPrice(pollCtx, n, data); err != nil {
					log.Warn().Err(err).Str("pool", n.PoolAddress).Msg("price poll during open failed")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (e *Engine) primePoolPrice(ctx context.Context, n position.NewProgrammaticPosition, data *openPositionData) error {
	meta, err := e.amm.PoolTokensAndTickSpacing(ctx, n.PoolAddress)
	if err != nil {
		return err
	}
	pool, err := e.amm.CLPPool(ctx, meta.TokenMintA, meta.TokenMintB, meta.TickSpacing)
	if err != nil {
		return err
	}
	data.setPoolPrice(pool.Price)
	return nil
}

// balanceResult is balanceTokens' return: the final base-unit
// balances and the range to centre the new position on.
type balanceResult struct {
	BalanceA   uint64
	BalanceB   uint64
	RangeLower float64
	RangeUpper float64
	Swapped    bool
}

// balanceTokens implements spec.md §4.6.5: iteratively swaps whichever
// token is USD-heavier until the split is within the 45-55% tolerance
// band or the iteration cap is reached.
func (e *Engine) balanceTokens(ctx context.Context, n position.NewProgrammaticPosition, data *openPositionData) (balanceResult, error) {
	tokenA, err := e.tokens.Resolve(ctx, n.TokenMintA)
	if err != nil {
		return balanceResult{}, err
	}
	tokenB, err := e.tokens.Resolve(ctx, n.TokenMintB)
	if err != nil {
		return balanceResult{}, err
	}

	var balanceA, balanceB uint64
	for i := 0; i < balanceIterationCap; i++ {
		balanceA, err = e.tokenBalance(ctx, e.walletAddress, n.TokenMintA)
		if err != nil {
			return balanceResult{}, err
		}
		balanceB, err = e.tokenBalance(ctx, e.walletAddress, n.TokenMintB)
		if err != nil {
			return balanceResult{}, err
		}
		if tokenA.MintAddress == token.Solana().MintAddress {
			balanceA = saturatingSub(balanceA, feeReserveLamports)
		}

		poolPrice := data.getPoolPrice()
		valueAUSD := float64(balanceA) / pow10(tokenA.Decimals) * poolPrice
		valueBUSD := float64(balanceB) / pow10(tokenB.Decimals)
		total := valueAUSD + valueBUSD

		if total == 0 {
			return balanceResult{}, ErrZeroBalance
		}

		ratioA := valueAUSD / total
		if ratioA >= ratioToleranceLow && ratioA <= ratioToleranceHigh {
			return balanceResult{
				BalanceA: balanceA, BalanceB: balanceB,
				RangeLower: poolPrice * rangeBandLow, RangeUpper: poolPrice * rangeBandHigh,
				Swapped: i > 0,
			}, nil
		}

		excessUSD := valueAUSD - total/2
		var amountIn ammclient.SwapAmount
		var mintOut string
		if excessUSD > 0 {
			amountIn = ammclient.SwapAmount{Direction: ammclient.ExactIn, Amount: uint64(excessUSD / poolPrice * pow10(tokenA.Decimals))}
			mintOut = n.TokenMintB
		} else {
			amountIn = ammclient.SwapAmount{Direction: ammclient.ExactIn, Amount: uint64(-excessUSD * pow10(tokenB.Decimals))}
			mintOut = n.TokenMintA
		}

		quote, err := e.amm.SwapInstructions(ctx, e.walletAddress, n.PoolAddress, amountIn, mintOut, swapSlippageBps)
		if err != nil {
			return balanceResult{}, err
		}
		signature, err := e.builder.Submit(ctx, quote.Instructions, quote.AdditionalSigners, txbuilder.PriorityLevel{Kind: txbuilder.PriorityHigh})
		if err != nil {
			return balanceResult{}, err
		}
		log.Info().Str("signature", signature).Msg("balance-tokens swap executed")
	}

	poolPrice := data.getPoolPrice()
	return balanceResult{
		BalanceA: balanceA, BalanceB: balanceB,
		RangeLower: poolPrice * rangeBandLow, RangeUpper: poolPrice * rangeBandHigh,
		Swapped: true,
	}, nil
}

func (e *Engine) tokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	if mint == token.Solana().MintAddress {
		return getBalance(ctx, e.volumeRPC, owner)
	}
	return getTokenAccountBalance(ctx, e.volumeRPC, owner, mint)
}
