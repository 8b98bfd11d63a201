package rebalance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/position"
)

// signatureHistoryLimit bounds the getSignaturesForAddress lookup used
// to estimate a newly-discovered position's created_at; Solana caps a
// single call well above this, so the oldest entry returned is treated
// as a creation-time estimate rather than a guarantee, per spec.md
// §4.6.1 step 4's "estimate".
const signatureHistoryLimit = 1000

// walletPosition pairs an on-chain position with the wallet it was
// fetched for, so the union step (4.6.1 step 2) can recover
// wallet_key for positions not yet in the managed set.
type walletPosition struct {
	info      ammclient.OrcaPositionInfo
	walletKey string
}

// reconcileOnce runs one tick of the reconciliation loop (spec.md
// §4.6.1): it re-derives the managed set from the union of both
// tracked wallets' on-chain positions, drops anything no longer
// present, re-quotes anything that survives, and replaces the store's
// list in one lock acquisition.
func (e *Engine) reconcileOnce(ctx context.Context) error {
	snap := e.store.Snapshot()

	var wallets []string
	if snap.LocalWalletPubkey != nil {
		wallets = append(wallets, *snap.LocalWalletPubkey)
	}
	if snap.ProgrammaticWalletPubkey != nil {
		wallets = append(wallets, *snap.ProgrammaticWalletPubkey)
	}

	union := make(map[string]walletPosition)
	for _, w := range wallets {
		infos, err := e.amm.PositionsForWallet(ctx, w)
		if err != nil {
			log.Warn().Err(err).Str("wallet", w).Msg("positions_for_wallet failed, skipping this wallet this cycle")
			continue
		}
		for _, info := range infos {
			union[info.Address] = walletPosition{info: info, walletKey: w}
		}
	}

	existingByAddress := make(map[string]position.ManagedPosition, len(snap.ManagedPositions))
	for _, p := range snap.ManagedPositions {
		existingByAddress[p.Address] = p
	}

	var next []position.ManagedPosition
	var outgoing []position.PoolManagerMessage

	for _, p := range snap.ManagedPositions {
		if p.PoolType != position.PoolOrca {
			next = append(next, p)
			continue
		}
		if _, stillPresent := union[p.Address]; !stillPresent {
			outgoing = append(outgoing, position.NewRemovePositionMessage(p, 30))
		}
	}

	for address, wp := range union {
		if existing, ok := existingByAddress[address]; ok {
			p := existing
			e.requoteAndUpdate(ctx, &p)
			next = append(next, p)
			outgoing = append(outgoing, position.NewUpdatePositionMessage(p, 30))
			continue
		}

		p, err := e.toManagedPosition(ctx, wp.walletKey, wp.info)
		if err != nil {
			log.Warn().Err(err).Str("address", address).Msg("failed to onboard newly discovered position, will retry next cycle")
			continue
		}
		next = append(next, p)
		outgoing = append(outgoing, position.NewUpdatePositionMessage(p, 30))
	}

	e.store.ReplacePositions(next, outgoing)
	return nil
}

// toManagedPosition constructs a fresh ManagedPosition from an
// on-chain position report: it resolves the pool's token pair,
// estimates created_at, and primes current prices/balances, per
// spec.md §4.6.1 step 4's "else" branch.
func (e *Engine) toManagedPosition(ctx context.Context, walletKey string, info ammclient.OrcaPositionInfo) (position.ManagedPosition, error) {
	poolMeta, err := e.amm.PoolTokensAndTickSpacing(ctx, info.PoolAddress)
	if err != nil {
		return position.ManagedPosition{}, err
	}

	tokenA, err := e.tokens.Resolve(ctx, poolMeta.TokenMintA)
	if err != nil {
		return position.ManagedPosition{}, err
	}
	tokenB, err := e.tokens.Resolve(ctx, poolMeta.TokenMintB)
	if err != nil {
		return position.ManagedPosition{}, err
	}

	now := time.Now()
	p := position.ManagedPosition{
		PoolType:     position.PoolOrca,
		CreatedAt:    e.estimateCreatedAt(ctx, info.Address),
		UpdatedAt:    now,
		Address:      info.Address,
		WalletKey:    walletKey,
		PositionMint: info.PositionMint,
		PoolAddress:  info.PoolAddress,
		TickSpacing:  poolMeta.TickSpacing,
		SqrtPrice:    info.SqrtPrice,
		TokenA: &position.TokenRef{
			Name: tokenA.Name, Symbol: tokenA.Symbol,
			MintAddress: tokenA.MintAddress, Decimals: tokenA.Decimals, IsStablecoin: tokenA.IsStablecoin,
		},
		TokenB: &position.TokenRef{
			Name: tokenB.Name, Symbol: tokenB.Symbol,
			MintAddress: tokenB.MintAddress, Decimals: tokenB.Decimals, IsStablecoin: tokenB.IsStablecoin,
		},
		RangeLower:    info.RangeLower,
		RangeUpper:    info.RangeUpper,
		RewardInfos:   info.RewardInfos,
		AutoRebalance: true,
	}

	e.requoteAndUpdate(ctx, &p)
	return p, nil
}

// requoteAndUpdate is update_prices (spec.md §4.6.1): it re-quotes the
// position's pool for its current price, then re-quotes a close to
// obtain authoritative principal (token_est_a/b) and accrued yield
// (fee_owed_a/b). Failures are absorbed (Transient per §7): the
// position keeps its last-known balances and is still touched.
func (e *Engine) requoteAndUpdate(ctx context.Context, p *position.ManagedPosition) {
	if p.TokenA == nil || p.TokenB == nil {
		p.RecomputeDerivedFields(time.Now())
		return
	}

	pool, err := e.amm.CLPPool(ctx, p.TokenA.MintAddress, p.TokenB.MintAddress, p.TickSpacing)
	if err != nil {
		log.Warn().Err(err).Str("address", p.Address).Msg("clp_pool requote failed")
		p.RecomputeDerivedFields(time.Now())
		return
	}
	p.CurrentPrice = pool.Price
	p.SqrtPrice = pool.SqrtPrice

	quote, err := e.amm.ClosePositionInstructions(ctx, p.PositionMint, p.WalletKey, nil, closeQuoteSlippageBps)
	if err != nil {
		log.Warn().Err(err).Str("address", p.Address).Msg("close re-quote failed, balances not refreshed this cycle")
		p.RecomputeDerivedFields(time.Now())
		return
	}

	p.BalanceTokenA = quote.Quote.TokenEstA / pow10(p.TokenA.Decimals)
	p.BalanceTokenB = quote.Quote.TokenEstB / pow10(p.TokenB.Decimals)
	p.YieldTokenA = quote.FeesQuote.FeeOwedA / pow10(p.TokenA.Decimals)
	p.YieldTokenB = quote.FeesQuote.FeeOwedB / pow10(p.TokenB.Decimals)
	p.RewardsOwed = quote.RewardsQuote

	p.RecomputeDerivedFields(time.Now())
}

// estimateCreatedAt fetches address's signature history and takes the
// oldest entry's block_time, falling back to now on any failure or
// missing timestamp.
func (e *Engine) estimateCreatedAt(ctx context.Context, address string) time.Time {
	sigs, err := getSignaturesForAddress(ctx, e.volumeRPC, address, signatureHistoryLimit)
	if err != nil || len(sigs) == 0 {
		return time.Now()
	}
	oldest := sigs[len(sigs)-1]
	if oldest.BlockTime == nil {
		return time.Now()
	}
	return time.Unix(*oldest.BlockTime, 0)
}
