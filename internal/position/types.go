// Package position implements the data model and process-wide store
// (C5) for managed liquidity positions: ManagedPosition, the
// PoolManagerMessage outbound notification type, and the canonical
// tick-to-price computation.
package position

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// PoolType names the AMM a position lives on. Only Orca is active;
// the rest are recognised so reconciliation can tell a foreign
// position apart from one it manages.
type PoolType int

const (
	PoolOrca PoolType = iota
	PoolRaydium
	PoolSaber
	PoolMango
	PoolSerum
	PoolOther
)

func (p PoolType) String() string {
	switch p {
	case PoolOrca:
		return "Orca"
	case PoolRaydium:
		return "Raydium"
	case PoolSaber:
		return "Saber"
	case PoolMango:
		return "Mango"
	case PoolSerum:
		return "Serum"
	default:
		return "Other"
	}
}

func (p PoolType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PoolType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Orca":
		*p = PoolOrca
	case "Raydium":
		*p = PoolRaydium
	case "Saber":
		*p = PoolSaber
	case "Mango":
		*p = PoolMango
	case "Serum":
		*p = PoolSerum
	default:
		*p = PoolOther
	}
	return nil
}

// U128 is a non-negative 128-bit integer serialised as a decimal
// string over JSON (u128 has no exact representation in JSON numbers
// and must round-trip through the outbound notification channel
// unchanged, per the spec's round-trip law for sqrt_price).
type U128 struct {
	big.Int
}

// NewU128 wraps v as a U128.
func NewU128(v uint64) U128 {
	var u U128
	u.SetUint64(v)
	return u
}

func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Int.String())
}

func (u *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		s = "0"
	}
	if _, ok := u.Int.SetString(s, 10); !ok {
		return fmt.Errorf("invalid u128 value %q", s)
	}
	return nil
}

// RewardInfo is one per-position reward accumulator, carried from
// the AMM client's close-instruction quote.
type RewardInfo struct {
	GrowthInsideCheckpoint U128   `json:"growth_inside_checkpoint"`
	AmountOwed             uint64 `json:"amount_owed"`
}

// RangeStateKind tags which side of the range (or the exact centre)
// the ticker price currently falls on.
type RangeStateKind int

const (
	RangeOutUnder RangeStateKind = iota
	RangeOutOver
	RangeInLower
	RangeInHigher
	RangeCentered
)

// RangeState is the tagged union classification of a position's
// ticker price relative to its range, carrying the proximity score
// the decision loop thresholds against.
type RangeState struct {
	Kind  RangeStateKind
	Score float64
}

func (r RangeState) String() string {
	switch r.Kind {
	case RangeOutUnder:
		return fmt.Sprintf("OutUnder(%.4f)", r.Score)
	case RangeOutOver:
		return fmt.Sprintf("OutOver(%.4f)", r.Score)
	case RangeInLower:
		return fmt.Sprintf("InLower(%.4f)", r.Score)
	case RangeInHigher:
		return fmt.Sprintf("InHigher(%.4f)", r.Score)
	default:
		return "Centered"
	}
}

// IsOutOfRange reports whether the state represents the ticker
// falling fully outside [range_lower, range_upper].
func (r RangeState) IsOutOfRange() bool {
	return r.Kind == RangeOutUnder || r.Kind == RangeOutOver
}

// PriceForTick is the canonical tick-to-price formula this
// implementation adopts to resolve the spec's range-computation open
// question: price = 1.0001^tick * 10^(decimals_a - decimals_b).
func PriceForTick(tick int32, decimalsA, decimalsB uint8) float64 {
	base := pow1_0001(tick)
	exp := int(decimalsA) - int(decimalsB)
	return base * pow10(exp)
}

// PriceForTickLegacy reproduces the original source's formula
// (1.0001^tick * multiplier, multiplier 1 iff both tokens are
// stablecoins else 1000). Nothing in this module calls it (nor
// PriceForTick): range prices are taken as the AMM service reports them.
func PriceForTickLegacy(tick int32, bothStablecoins bool) float64 {
	multiplier := 1000.0
	if bothStablecoins {
		multiplier = 1.0
	}
	return pow1_0001(tick) * multiplier
}

func pow1_0001(tick int32) float64 {
	const base = 1.0001
	result := 1.0
	exp := tick
	neg := exp < 0
	if neg {
		exp = -exp
	}
	b := base
	for exp > 0 {
		if exp&1 == 1 {
			result *= b
		}
		b *= b
		exp >>= 1
	}
	if neg {
		return 1.0 / result
	}
	return result
}

func pow10(exp int) float64 {
	if exp == 0 {
		return 1.0
	}
	neg := exp < 0
	if neg {
		exp = -exp
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= 10.0
	}
	if neg {
		return 1.0 / result
	}
	return result
}

// ManagedPosition is the authoritative record of one liquidity
// position.
type ManagedPosition struct {
	PoolType    PoolType   `json:"pool_type"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Address     string     `json:"address"`
	WalletKey   string     `json:"wallet_key"`
	PositionMint string    `json:"position_mint"`
	PoolAddress string     `json:"pool_address"`
	TickSpacing uint16     `json:"tick_spacing"`
	SqrtPrice   U128       `json:"sqrt_price"`

	TokenA *TokenRef `json:"token_a,omitempty"`
	TokenB *TokenRef `json:"token_b,omitempty"`

	BalanceTokenA           float64 `json:"balance_token_a"`
	BalanceTokenAUSD        float64 `json:"balance_token_a_usd"`
	BalanceTokenAPercentage float64 `json:"balance_token_a_percentage"`
	BalanceTokenB           float64 `json:"balance_token_b"`
	BalanceTokenBUSD        float64 `json:"balance_token_b_usd"`
	BalanceTokenBPercentage float64 `json:"balance_token_b_percentage"`
	BalanceTotalUSD         float64 `json:"balance_total_usd"`

	YieldTokenA    float64 `json:"yield_token_a"`
	YieldTokenAUSD float64 `json:"yield_token_a_usd"`
	YieldTokenB    float64 `json:"yield_token_b"`
	YieldTokenBUSD float64 `json:"yield_token_b_usd"`
	YieldTotalUSD  float64 `json:"yield_total_usd"`

	RangeLower float64 `json:"range_lower"`
	RangeUpper float64 `json:"range_upper"`

	RewardInfos []RewardInfo `json:"reward_infos"`
	RewardsOwed []uint64     `json:"rewards_owed"`

	CurrentPrice       float64 `json:"current_price"`
	CurrentTickerPrice float64 `json:"current_ticker_price"`

	OutOfRangeStart *time.Time `json:"out_of_range_start,omitempty"`
	AutoRebalance   bool       `json:"auto_rebalance"`
}

// TokenRef is the cheap owned snapshot of a token identity carried on
// a position, per spec.md §9's note against shared cyclic handles.
type TokenRef struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	MintAddress  string `json:"mint_address"`
	Decimals     uint8  `json:"decimals"`
	IsStablecoin bool   `json:"is_stablecoin"`
}

// Mid returns the midpoint of the position's range.
func (p *ManagedPosition) Mid() float64 {
	return (p.RangeLower + p.RangeUpper) / 2
}

// touch advances UpdatedAt to now, never moving it backwards, so the
// updated_at-is-monotone invariant holds regardless of clock jitter
// between calls.
func (p *ManagedPosition) touch(now time.Time) {
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
}

// NewProgrammaticPosition specifies what the next open should create.
type NewProgrammaticPosition struct {
	PoolType    PoolType `json:"pool_type"`
	PoolAddress string   `json:"pool_address"`
	TokenMintA  string   `json:"token_mint_a"`
	TokenMintB  string   `json:"token_mint_b"`
}

// FromManagedPosition builds the auto-reopen request for a position
// that just finished closing.
func FromManagedPosition(p ManagedPosition) NewProgrammaticPosition {
	mintA, mintB := "", ""
	if p.TokenA != nil {
		mintA = p.TokenA.MintAddress
	}
	if p.TokenB != nil {
		mintB = p.TokenB.MintAddress
	}
	return NewProgrammaticPosition{
		PoolType:    p.PoolType,
		PoolAddress: p.PoolAddress,
		TokenMintA:  mintA,
		TokenMintB:  mintB,
	}
}

// NewPositionData is ephemeral scratch state populated during an
// open and cleared afterwards.
type NewPositionData struct {
	PoolPrice       *float64
	BalanceAAmount  *uint64
	BalanceBAmount  *uint64
	SOLAmount       *float64
	LoopActive      bool
}

// MessageType tags the kind of outbound pool-manager notification.
type MessageType int

const (
	MessageUpdatePosition MessageType = iota
	MessageRemovePosition
	MessageStats
)

func (m MessageType) channelAndInstruction() (channel, instruction string) {
	switch m {
	case MessageUpdatePosition:
		return "managed-position", "update"
	case MessageRemovePosition:
		return "managed-position", "remove"
	default:
		return "stats", "update"
	}
}

// PoolManagerMessage is emitted onto the outbound notification
// channel.
type PoolManagerMessage struct {
	MessageType     MessageType `json:"-"`
	Channel         string      `json:"channel"`
	Instruction     string      `json:"instruction"`
	Data            interface{} `json:"data,omitempty"`
	FrequencySeconds uint64     `json:"frequency_seconds"`
}

// NewUpdatePositionMessage builds the UpdatePosition notification for
// a touched or newly reconciled position.
func NewUpdatePositionMessage(p ManagedPosition, frequencySeconds uint64) PoolManagerMessage {
	return newMessage(MessageUpdatePosition, p, frequencySeconds)
}

// NewRemovePositionMessage builds the RemovePosition notification for
// a position reconciliation no longer sees on-chain.
func NewRemovePositionMessage(p ManagedPosition, frequencySeconds uint64) PoolManagerMessage {
	return newMessage(MessageRemovePosition, p, frequencySeconds)
}

// NewStatsMessage builds the per-second Stats notification; data is
// one formatted string per ticker window.
func NewStatsMessage(lines []string) PoolManagerMessage {
	return newMessage(MessageStats, lines, 1)
}

func newMessage(kind MessageType, data interface{}, frequencySeconds uint64) PoolManagerMessage {
	channel, instruction := kind.channelAndInstruction()
	return PoolManagerMessage{
		MessageType:      kind,
		Channel:          channel,
		Instruction:      instruction,
		Data:             data,
		FrequencySeconds: frequencySeconds,
	}
}
