package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/config"
	"clp-rebalancer/internal/debugapi"
	"clp-rebalancer/internal/health"
	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/priceclient"
	"clp-rebalancer/internal/rebalance"
	"clp-rebalancer/internal/rpcfanout"
	"clp-rebalancer/internal/token"
	"clp-rebalancer/internal/txbuilder"
	"clp-rebalancer/internal/wallet"
)

func main() {
	setupLogger()
	log.Info().Msg("clp-rebalancer engine starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, engine, debugServer := initComponents(ctx)

	engine.Start(ctx)

	go func() {
		if err := debugServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug http surface failed")
		}
	}()

	log.Info().
		Str("host", cfg.Get().Debug.ListenHost).
		Int("port", cfg.Get().Debug.ListenPort).
		Bool("active", config.Mode()).
		Msg("engine running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()
	if err := debugServer.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("debug server shutdown")
	}
	log.Info().Msg("goodbye")
}

func initComponents(ctx context.Context) (*config.Manager, *rebalance.Engine, *debugapi.Server) {
	cfg, err := config.NewManager("config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	privateKey := cfg.GetPrivateKey()
	if privateKey == "" {
		log.Fatal().Msg("no programmatic wallet private key configured; set the env var named by wallet.private_key_env")
	}
	w, err := wallet.New(privateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load wallet")
	}
	log.Info().Str("address", w.Address()).Msg("programmatic wallet loaded")

	speedRPC := rpcfanout.SpeedPriority()
	volumeRPC := rpcfanout.VolumePriority()
	rpcTimeoutMs := int(cfg.GetRPCCallTimeout() / time.Millisecond)

	blockhashCache := txbuilder.NewBlockhashCache(speedRPC, 5*time.Second, 60*time.Second)
	if err := blockhashCache.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start blockhash cache")
	}

	builder := txbuilder.New(w, blockhashCache, speedRPC, volumeRPC)

	balanceTracker := wallet.NewBalanceTracker(w.Address(), func(ctx context.Context, address string) (uint64, error) {
		return rpcGetBalance(ctx, speedRPC, rpcTimeoutMs, address)
	})
	if err := balanceTracker.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial balance refresh failed")
	}
	log.Info().Float64("balance_sol", balanceTracker.SOL()).Msg("wallet balance")

	apiKey, secretKey := cfg.GetPriceFeedCredentials()
	ticker := priceclient.NewTicker()
	feed := priceclient.NewFeed(
		cfg.Get().PriceFeed.URL,
		[]string{cfg.Get().PriceFeed.ProductID},
		[]string{"ticker"},
		priceclient.Credentials{APIKey: apiKey, SecretKey: secretKey},
		ticker,
	)

	tokens := token.NewStore(fetchTokenMetadata)

	amm := ammclient.New(
		cfg.Get().AMM.NormalizedBaseURL(),
		cfg.GetAMMAPIKeys(),
		time.Duration(cfg.Get().AMM.TimeoutSeconds)*time.Second,
	)

	localWallet := cfg.GetLocalWalletPubkey()
	store := position.New(config.Mode(), w.Address())
	if localWallet != "" {
		log.Info().Str("pubkey", localWallet).Msg("tracking additional read-only wallet")
	}

	engine := rebalance.New(store, amm, builder, ticker, tokens, volumeRPC, speedRPC, w.Address())
	if localWallet != "" {
		if _, err := engine.SetLocalWalletPubkey(context.Background(), localWallet); err != nil {
			log.Warn().Err(err).Msg("failed to register local wallet")
		}
	}

	go feed.Run(ctx)

	var checker *health.Checker
	if len(speedRPC.URLs) > 0 {
		checker = health.NewChecker(speedRPC.URLs[0], cfg.Get().AMM.NormalizedBaseURL())
		checker.Start(ctx)
	}

	debugServer := debugapi.NewServer(cfg.Get().Debug.ListenHost, cfg.Get().Debug.ListenPort, engine, checker)

	return cfg, engine, debugServer
}

// fetchTokenMetadata resolves a mint's name/symbol/decimals from the
// Jupiter strict token list, the same directory the teacher's jupiter
// client quoted swaps against.
func fetchTokenMetadata(ctx context.Context, mint string) (token.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://tokens.jup.ag/token/"+mint, nil)
	if err != nil {
		return token.Token{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return token.Token{}, fmt.Errorf("fetch token metadata: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return token.Token{}, fmt.Errorf("decode token metadata: %w", err)
	}
	return token.New(decoded.Name, decoded.Symbol, mint, decoded.Decimals), nil
}

// rpcGetBalance duplicates C6's JSON-RPC envelope for the one call the
// wallet balance tracker needs, rather than exporting it from
// internal/rebalance purely for this caller.
func rpcGetBalance(ctx context.Context, mode rpcfanout.Mode, timeoutMs int, address string) (uint64, error) {
	type rpcRequest struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      int           `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
	}
	type rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	type rpcResponse struct {
		Result json.RawMessage `json:"result,omitempty"`
		Error  *rpcError       `json:"error,omitempty"`
	}

	out, err := rpcfanout.Call(ctx, mode, timeoutMs, func(ctx context.Context, endpointURL string) (uint64, error) {
		req := rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "getBalance",
			Params:  []interface{}{address, map[string]string{"commitment": "confirmed"}},
		}
		body, err := json.Marshal(req)
		if err != nil {
			return 0, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		var decoded rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return 0, err
		}
		if decoded.Error != nil {
			return 0, fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
		}
		var value struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(decoded.Result, &value); err != nil {
			return 0, err
		}
		return value.Value, nil
	})
	return out, err
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
