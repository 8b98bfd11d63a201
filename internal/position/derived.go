package position

import "time"

// usdValue prices a token-A-denominated amount in USD: 1:1 if A is
// the stablecoin, multiplied by the pool price if B is, else left at
// face value (no external price multiplier is applied).
func usdValue(tokenA, tokenB *TokenRef, amount, poolPrice float64) float64 {
	if tokenA == nil || tokenB == nil {
		return 0
	}
	switch {
	case tokenA.IsStablecoin:
		return amount
	case tokenB.IsStablecoin:
		return amount * poolPrice
	default:
		return amount
	}
}

// usdValueB is usdValue's mirror for token B: divides by pool price
// when A is the stablecoin (pool price is quoted A-per-B).
func usdValueB(tokenA, tokenB *TokenRef, amount, poolPrice float64) float64 {
	if tokenA == nil || tokenB == nil {
		return 0
	}
	switch {
	case tokenB.IsStablecoin:
		return amount
	case tokenA.IsStablecoin:
		if poolPrice == 0 {
			return 0
		}
		return amount / poolPrice
	default:
		return amount
	}
}

func (p *ManagedPosition) computeBalanceTokenAUSD() float64 {
	return usdValue(p.TokenA, p.TokenB, p.BalanceTokenA, p.CurrentPrice)
}

func (p *ManagedPosition) computeBalanceTokenBUSD() float64 {
	return usdValueB(p.TokenA, p.TokenB, p.BalanceTokenB, p.CurrentPrice)
}

func (p *ManagedPosition) computeBalanceTotalUSD() float64 {
	return p.computeBalanceTokenAUSD() + p.computeBalanceTokenBUSD()
}

func (p *ManagedPosition) computeBalanceTokenAPercentage() float64 {
	total := p.computeBalanceTotalUSD()
	if total == 0 {
		return 0
	}
	return p.computeBalanceTokenAUSD() / total * 100
}

func (p *ManagedPosition) computeBalanceTokenBPercentage() float64 {
	total := p.computeBalanceTotalUSD()
	if total == 0 {
		return 0
	}
	return p.computeBalanceTokenBUSD() / total * 100
}

func (p *ManagedPosition) computeYieldTokenAUSD() float64 {
	return usdValue(p.TokenA, p.TokenB, p.YieldTokenA, p.CurrentPrice)
}

func (p *ManagedPosition) computeYieldTokenBUSD() float64 {
	return usdValueB(p.TokenA, p.TokenB, p.YieldTokenB, p.CurrentPrice)
}

func (p *ManagedPosition) computeYieldTotalUSD() float64 {
	return p.computeYieldTokenAUSD() + p.computeYieldTokenBUSD()
}

// RecomputeDerivedFields refreshes every *_usd/*_percentage/total field
// from the position's current balances, yields, and price, then
// advances UpdatedAt. Called after any reconciliation update.
func (p *ManagedPosition) RecomputeDerivedFields(now time.Time) {
	p.BalanceTokenAUSD = p.computeBalanceTokenAUSD()
	p.BalanceTokenBUSD = p.computeBalanceTokenBUSD()
	p.BalanceTotalUSD = p.computeBalanceTotalUSD()
	p.BalanceTokenAPercentage = p.computeBalanceTokenAPercentage()
	p.BalanceTokenBPercentage = p.computeBalanceTokenBPercentage()
	p.YieldTokenAUSD = p.computeYieldTokenAUSD()
	p.YieldTokenBUSD = p.computeYieldTokenBUSD()
	p.YieldTotalUSD = p.computeYieldTotalUSD()
	p.touch(now)
}

// ClassifyRange computes the position's current RangeState against
// ticker, updating out_of_range_start per the invariant (set on first
// out-of-range observation, cleared on any in-range observation), and
// reports whether a rebalance should be queued per spec.md §4.6.2's
// thresholds (out of range outright, or >95% toward either edge after
// 60s of position age).
func (p *ManagedPosition) ClassifyRange(ticker float64, now time.Time) (RangeState, bool) {
	p.CurrentTickerPrice = ticker
	lower, upper := p.RangeLower, p.RangeUpper
	mid := p.Mid()

	var state RangeState
	switch {
	case ticker < lower:
		state = RangeState{Kind: RangeOutUnder, Score: (lower - ticker) / (lower - mid)}
		if p.OutOfRangeStart == nil {
			t := now
			p.OutOfRangeStart = &t
		}
	case ticker > upper:
		state = RangeState{Kind: RangeOutOver, Score: (ticker - upper) / (mid - upper)}
		if p.OutOfRangeStart == nil {
			t := now
			p.OutOfRangeStart = &t
		}
	case ticker < mid:
		state = RangeState{Kind: RangeInLower, Score: (mid - ticker) / (mid - lower)}
		p.OutOfRangeStart = nil
	case ticker > mid:
		state = RangeState{Kind: RangeInHigher, Score: (ticker - mid) / (upper - mid)}
		p.OutOfRangeStart = nil
	default:
		state = RangeState{Kind: RangeCentered}
		p.OutOfRangeStart = nil
	}

	ageSeconds := now.Sub(p.CreatedAt).Seconds()
	shouldRebalance := state.IsOutOfRange()
	if !shouldRebalance && ageSeconds > 60 {
		switch state.Kind {
		case RangeInLower, RangeInHigher:
			shouldRebalance = state.Score > 0.95
		}
	}

	return state, shouldRebalance
}
