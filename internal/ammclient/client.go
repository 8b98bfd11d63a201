// Package ammclient calls the external AMM-instruction service (C3):
// Orca position lookups, pool metadata, and instruction-building for
// open/close/swap. Each call is a direct HTTP request to the single
// configured base URL; calls do not go through the RPC fanout.
package ammclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"clp-rebalancer/internal/position"
)

// TokenSide tags the two legs of a pool for instruction requests that
// accept an amount denominated in either token, per spec.md §4.3's
// TokenAmount sum type.
type TokenSide int

const (
	SideA TokenSide = iota
	SideB
)

// TokenAmount is the tagged union of an amount denominated in either
// pool token.
type TokenAmount struct {
	Side   TokenSide
	Amount uint64
}

func InTokenA(amount uint64) TokenAmount { return TokenAmount{Side: SideA, Amount: amount} }
func InTokenB(amount uint64) TokenAmount { return TokenAmount{Side: SideB, Amount: amount} }

func (t TokenAmount) MarshalJSON() ([]byte, error) {
	switch t.Side {
	case SideA:
		return json.Marshal(struct {
			TokenA uint64 `json:"token_a"`
		}{t.Amount})
	default:
		return json.Marshal(struct {
			TokenB uint64 `json:"token_b"`
		}{t.Amount})
	}
}

// SwapDirection tags whether a swap amount is an exact input or an
// exact output.
type SwapDirection int

const (
	ExactIn SwapDirection = iota
	ExactOut
)

// SwapAmount is the tagged union of a swap's amount sum type.
type SwapAmount struct {
	Direction SwapDirection
	Amount    uint64
}

func (s SwapAmount) MarshalJSON() ([]byte, error) {
	switch s.Direction {
	case ExactIn:
		return json.Marshal(struct {
			ExactIn uint64 `json:"exact_in"`
		}{s.Amount})
	default:
		return json.Marshal(struct {
			ExactOut uint64 `json:"exact_out"`
		}{s.Amount})
	}
}

// OrcaPositionInfo is one position the AMM service reports for a
// tracked wallet.
type OrcaPositionInfo struct {
	Address      string          `json:"address"`
	PositionMint string          `json:"position_mint"`
	PoolAddress  string          `json:"pool_address"`
	TickSpacing  uint16          `json:"tick_spacing"`
	SqrtPrice    position.U128   `json:"sqrt_price"`
	RangeLower   float64         `json:"range_lower"`
	RangeUpper   float64         `json:"range_upper"`
	LiquidityA   float64         `json:"liquidity_a"`
	LiquidityB   float64         `json:"liquidity_b"`
	RewardInfos  []position.RewardInfo `json:"reward_infos"`
}

// PoolTokensAndTick describes the token pair and spacing of a known
// whirlpool address.
type PoolTokensAndTick struct {
	TokenMintA  string `json:"token_mint_a"`
	TokenMintB  string `json:"token_mint_b"`
	TickSpacing uint16 `json:"tick_spacing"`
}

// OrcaPoolInfo is returned by clp_pool.
type OrcaPoolInfo struct {
	Price       float64       `json:"price"`
	SqrtPrice   position.U128 `json:"sqrt_price"`
	TickSpacing uint16        `json:"tick_spacing"`
	TokenMintA  string        `json:"token_mint_a"`
	TokenMintB  string        `json:"token_mint_b"`
	PoolAddress string        `json:"pool_address"`
}

// AccountMeta is one account reference within an Instruction, mirroring
// solana_sdk::instruction::AccountMeta.
type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is a single, uncompiled program invocation — the shape
// C4 compiles into a Solana message, mirroring solana_sdk::Instruction.
type Instruction struct {
	ProgramID string        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// OpenQuote is the open-instruction response.
type OpenQuote struct {
	Instructions      []Instruction   `json:"instructions"`
	AdditionalSigners []string        `json:"additional_signers"`
	Quote             json.RawMessage `json:"quote"`
}

// CloseQuote is the close-instruction response.
type CloseQuote struct {
	Instructions      []Instruction `json:"instructions"`
	AdditionalSigners []string      `json:"additional_signers"`
	Quote             struct {
		TokenEstA float64 `json:"token_est_a"`
		TokenEstB float64 `json:"token_est_b"`
		TokenMinA float64 `json:"token_min_a"`
		TokenMinB float64 `json:"token_min_b"`
	} `json:"quote"`
	FeesQuote struct {
		FeeOwedA float64 `json:"fee_owed_a"`
		FeeOwedB float64 `json:"fee_owed_b"`
	} `json:"fees_quote"`
	RewardsQuote []uint64 `json:"rewards_quote"`
}

// SwapQuote is the swap-instruction response.
type SwapQuote struct {
	Instructions      []Instruction `json:"instructions"`
	AdditionalSigners []string      `json:"additional_signers"`
}

// clientPool round-robins a small set of HTTP/2-configured clients,
// grounded on the teacher's Jupiter HTTPClientPool.
type clientPool struct {
	clients []*http.Client
	mu      sync.Mutex
	idx     uint32
}

func newClientPool(size int, timeout time.Duration) *clientPool {
	pool := &clientPool{clients: make([]*http.Client, size)}
	for i := 0; i < size; i++ {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		http2.ConfigureTransport(transport)
		pool.clients[i] = &http.Client{Transport: transport, Timeout: timeout}
	}
	return pool
}

func (p *clientPool) get() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.clients[p.idx%uint32(len(p.clients))]
	p.idx++
	return c
}

// Client calls the external AMM-instruction service.
type Client struct {
	baseURL string
	apiKeys []string
	keyIdx  uint32
	keyMu   sync.Mutex
	pool    *clientPool
}

// New constructs a Client pointed at baseURL (the AMM-instruction
// service's HTTP endpoint), rotating across apiKeys round-robin.
func New(baseURL string, apiKeys []string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKeys: apiKeys,
		pool:    newClientPool(4, timeout),
	}
}

func (c *Client) nextAPIKey() string {
	if len(c.apiKeys) == 0 {
		return ""
	}
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	key := c.apiKeys[c.keyIdx%uint32(len(c.apiKeys))]
	c.keyIdx++
	return key
}

func (c *Client) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.nextAPIKey(); key != "" {
		req.Header.Set("x-api-key", key)
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key := c.nextAPIKey(); key != "" {
		req.Header.Set("x-api-key", key)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.pool.get().Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PositionsForWallet returns every Orca position owned by wallet.
func (c *Client) PositionsForWallet(ctx context.Context, wallet string) ([]OrcaPositionInfo, error) {
	var out []OrcaPositionInfo
	if err := c.doGet(ctx, "/positions?wallet="+wallet, &out); err != nil {
		return nil, fmt.Errorf("positions for wallet: %w", err)
	}
	return out, nil
}

// PoolTokensAndTickSpacing returns the token pair and spacing of a
// known whirlpool address.
func (c *Client) PoolTokensAndTickSpacing(ctx context.Context, whirlpoolAddress string) (PoolTokensAndTick, error) {
	var out PoolTokensAndTick
	if err := c.doGet(ctx, "/pool/"+whirlpoolAddress+"/tokens", &out); err != nil {
		return PoolTokensAndTick{}, fmt.Errorf("pool tokens and tick: %w", err)
	}
	return out, nil
}

// CLPPool looks up the current pool state for a token pair and tick
// spacing.
func (c *Client) CLPPool(ctx context.Context, tokenMintA, tokenMintB string, tickSpacing uint16) (OrcaPoolInfo, error) {
	path := fmt.Sprintf("/pool?token_a=%s&token_b=%s&tick_spacing=%d", tokenMintA, tokenMintB, tickSpacing)
	var out OrcaPoolInfo
	if err := c.doGet(ctx, path, &out); err != nil {
		return OrcaPoolInfo{}, fmt.Errorf("clp pool: %w", err)
	}
	return out, nil
}

type openPositionRequest struct {
	Wallet      string      `json:"wallet"`
	Pool        string      `json:"pool"`
	TokenAmount TokenAmount `json:"token_amount"`
	SlippageBps int         `json:"slippage_bps"`
	RangeLower  float64     `json:"range_lower"`
	RangeUpper  float64     `json:"range_upper"`
}

// OpenPositionInstructions requests the instruction bundle to open a
// new position.
func (c *Client) OpenPositionInstructions(ctx context.Context, wallet, pool string, amount TokenAmount, slippageBps int, rangeLower, rangeUpper float64) (OpenQuote, error) {
	req := openPositionRequest{
		Wallet:      wallet,
		Pool:        pool,
		TokenAmount: amount,
		SlippageBps: slippageBps,
		RangeLower:  rangeLower,
		RangeUpper:  rangeUpper,
	}
	var out OpenQuote
	if err := c.doPost(ctx, "/open", req, &out); err != nil {
		return OpenQuote{}, fmt.Errorf("open position instructions: %w", err)
	}
	return out, nil
}

type closePositionRequest struct {
	PositionMint  string  `json:"position_mint"`
	Wallet        string  `json:"wallet"`
	PriceTickInfo *string `json:"price_tick_info,omitempty"`
	SlippageBps   int     `json:"slippage_bps"`
}

// ClosePositionInstructions requests the instruction bundle to close
// an existing position, optionally pinned to a caller-supplied price
// tick snapshot.
func (c *Client) ClosePositionInstructions(ctx context.Context, positionMint, wallet string, priceTickInfo *string, slippageBps int) (CloseQuote, error) {
	req := closePositionRequest{
		PositionMint:  positionMint,
		Wallet:        wallet,
		PriceTickInfo: priceTickInfo,
		SlippageBps:   slippageBps,
	}
	var out CloseQuote
	if err := c.doPost(ctx, "/close", req, &out); err != nil {
		return CloseQuote{}, fmt.Errorf("close position instructions: %w", err)
	}
	return out, nil
}

type swapRequest struct {
	Wallet      string     `json:"wallet"`
	Pool        string     `json:"pool"`
	Amount      SwapAmount `json:"amount"`
	MintOut     string     `json:"mint_out"`
	SlippageBps int        `json:"slippage_bps"`
}

// SwapInstructions requests the instruction bundle for a direct
// in-pool swap (used by the balance-tokens routine).
func (c *Client) SwapInstructions(ctx context.Context, wallet, pool string, amount SwapAmount, mintOut string, slippageBps int) (SwapQuote, error) {
	req := swapRequest{
		Wallet:      wallet,
		Pool:        pool,
		Amount:      amount,
		MintOut:     mintOut,
		SlippageBps: slippageBps,
	}
	var out SwapQuote
	if err := c.doPost(ctx, "/swap", req, &out); err != nil {
		return SwapQuote{}, fmt.Errorf("swap instructions: %w", err)
	}
	return out, nil
}
