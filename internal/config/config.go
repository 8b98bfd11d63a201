// Package config layers engine configuration: built-in defaults, an
// optional YAML file (hot-reloaded via fsnotify), and environment
// variables. Secrets are never stored in YAML, only the name of the
// env var that holds them, so a fresh os.Getenv always wins over
// whatever the file last said.
package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	AMM       AMMConfig       `mapstructure:"amm"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// WalletConfig names the environment variables the programmatic
// signing wallet and the optional read-only view wallet are loaded
// from, per spec.md §6.
type WalletConfig struct {
	PrivateKeyEnv        string `mapstructure:"private_key_env"`
	LocalWalletPubkeyEnv string `mapstructure:"local_wallet_pubkey_env"`
}

// RPCConfig holds RPC call settings. CallTimeoutMs is the fanout
// timeout cmd/engine uses for its wallet-balance lookup; the rebalance
// engine and transaction builder call the fanout with its default.
// SignatureHistoryLimit is loaded but not read: the reconciliation
// loop's signature-history lookup uses its own fixed limit.
type RPCConfig struct {
	CallTimeoutMs         int `mapstructure:"call_timeout_ms"`
	SignatureHistoryLimit int `mapstructure:"signature_history_limit"`
}

// PriceFeedConfig names the Coinbase-style authenticated websocket
// feed's credentials and connection parameters, per spec.md §4.2/§6.
// ReconnectDelayMs is loaded but not read; the feed's reconnect delays
// are fixed in internal/priceclient.
type PriceFeedConfig struct {
	APIKeyEnv        string `mapstructure:"api_key_env"`
	SecretKeyEnv     string `mapstructure:"secret_key_env"`
	URL              string `mapstructure:"url"`
	ProductID        string `mapstructure:"product_id"`
	ReconnectDelayMs int    `mapstructure:"reconnect_delay_ms"`
}

// AMMConfig points the C3 client at the out-of-process AMM-instruction
// service. APIKeyEnvs names zero or more env vars to round-robin
// across as the service's API key; an unset entry is silently
// dropped, matching the RPC preset's missing-key convention.
type AMMConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	APIKeyEnvs     []string `mapstructure:"api_key_envs"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// NormalizedBaseURL strips a trailing slash so ammclient's path
// concatenation never produces a doubled slash.
func (c AMMConfig) NormalizedBaseURL() string {
	return strings.TrimSuffix(c.BaseURL, "/")
}

// DebugConfig controls the minimal operability HTTP surface
// (internal/debugapi) — healthz plus a read-only position dump, never
// the full external control plane.
type DebugConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
}

// Manager handles config loading and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager builds a Manager layering defaults, an optional YAML
// file at configPath (a missing file is not an error — defaults and
// env vars alone are a valid configuration), and watches the file for
// changes if it exists.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("wallet.private_key_env", "SOLANA_WALLET_PRIVATE_KEY")
	v.SetDefault("wallet.local_wallet_pubkey_env", "SOLANA_DEFI_WALLET_PUBLIC_KEY")
	v.SetDefault("rpc.call_timeout_ms", 20_000)
	v.SetDefault("rpc.signature_history_limit", 1000)
	v.SetDefault("price_feed.api_key_env", "COINBASE_API_KEY")
	v.SetDefault("price_feed.secret_key_env", "COINBASE_SECRET_KEY")
	v.SetDefault("price_feed.url", "wss://ws-feed.exchange.coinbase.com")
	v.SetDefault("price_feed.product_id", "SOL-USD")
	v.SetDefault("price_feed.reconnect_delay_ms", 2000)
	v.SetDefault("amm.timeout_seconds", 15)
	v.SetDefault("debug.listen_host", "127.0.0.1")
	v.SetDefault("debug.listen_port", 8090)

	fileExists := false
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			fileExists = true
		}
	}

	if fileExists {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: &cfg, viper: v}

	if fileExists {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info().Str("file", e.Name).Msg("config file changed, reloading")
			m.reload()
		})
	}

	return m, nil
}

// Get returns the current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback invoked after a hot-reload.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}
	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// Mode reports whether the engine is active (mutating executors
// enabled) per the MODE environment variable (spec.md §6). Read
// directly from the environment rather than cached on Config, since
// it gates state-mutating behavior and must always reflect the
// current process environment.
func Mode() bool {
	return os.Getenv("MODE") == "active"
}

// GetPrivateKey loads the programmatic wallet's private key from the
// environment variable named by wallet.private_key_env.
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetLocalWalletPubkey loads the optional read-only view wallet's
// pubkey from the environment, returning "" if unset.
func (m *Manager) GetLocalWalletPubkey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.LocalWalletPubkeyEnv)
}

// GetPriceFeedCredentials loads the Coinbase-style feed's API key and
// secret from the environment.
func (m *Manager) GetPriceFeedCredentials() (apiKey, secretKey string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.PriceFeed.APIKeyEnv), os.Getenv(m.config.PriceFeed.SecretKeyEnv)
}

// GetAMMAPIKeys resolves every configured env var name to its current
// value, dropping any that are unset — mirrors the RPC fanout
// preset's missing-key convention (strings.Contains is not needed
// here since there is no URL to inject a parameter into; the AMM
// client sends its key as a header instead).
func (m *Manager) GetAMMAPIKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for _, envName := range m.config.AMM.APIKeyEnvs {
		if key := os.Getenv(envName); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetRPCCallTimeout returns call_timeout_ms as a Duration.
func (m *Manager) GetRPCCallTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.RPC.CallTimeoutMs) * time.Millisecond
}
