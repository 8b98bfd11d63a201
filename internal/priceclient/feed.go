package priceclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// reconnect delays, matching original_source's coinbase websocket
// loop: fixed 5s after a failed dial/read, 1s after a clean close.
const (
	reconnectDelayOnError = 5 * time.Second
	reconnectDelayOnClose = 1 * time.Second
)

// Credentials authenticate against the exchange's authenticated
// WebSocket channel.
type Credentials struct {
	APIKey    string
	SecretKey string // base64-encoded
}

// Feed owns one reconnecting Coinbase-style ticker WebSocket
// connection and publishes observed prices into a Ticker.
type Feed struct {
	url        string
	productIDs []string
	channels   []string
	creds      Credentials

	ticker *Ticker
}

// NewFeed constructs a feed that will update ticker on every observed
// tick message.
func NewFeed(url string, productIDs, channels []string, creds Credentials, ticker *Ticker) *Feed {
	return &Feed{
		url:        url,
		productIDs: productIDs,
		channels:   channels,
		creds:      creds,
		ticker:     ticker,
	}
}

type wsChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type subscribeMessage struct {
	Type      string      `json:"type"`
	Channels  []wsChannel `json:"channels"`
	Signature string      `json:"signature"`
	Key       string      `json:"key"`
	Timestamp string      `json:"timestamp"`
}

type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Time      string `json:"time"`
}

// generateSignature reproduces the exchange's HMAC-SHA256 auth
// scheme: sign "{timestamp}GET{requestPath}" with the base64-decoded
// secret, base64-encode the result.
func generateSignature(secretKeyB64, timestamp, requestPath string) (string, error) {
	decodedSecret, err := base64.StdEncoding.DecodeString(secretKeyB64)
	if err != nil {
		return "", fmt.Errorf("decode secret key: %w", err)
	}
	mac := hmac.New(sha256.New, decodedSecret)
	mac.Write([]byte(timestamp + "GET" + requestPath))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Run connects, subscribes, and reads ticker messages until ctx is
// cancelled, reconnecting indefinitely on any failure or clean close.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		closedCleanly, err := f.connectAndSubscribe(ctx)
		if err != nil {
			log.Warn().Err(err).Str("url", f.url).Msg("price feed connection failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelayOnError):
			}
			continue
		}
		if closedCleanly {
			log.Info().Str("url", f.url).Msg("price feed connection closed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelayOnClose):
			}
		}
	}
}

func (f *Feed) connectAndSubscribe(ctx context.Context) (closedCleanly bool, err error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature, err := generateSignature(f.creds.SecretKey, timestamp, "/users/self/verify")
	if err != nil {
		return false, fmt.Errorf("generate signature: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	channels := make([]wsChannel, len(f.channels))
	for i, name := range f.channels {
		channels[i] = wsChannel{Name: name, ProductIDs: f.productIDs}
	}
	msg := subscribeMessage{
		Type:      "subscribe",
		Channels:  channels,
		Signature: signature,
		Key:       f.creds.APIKey,
		Timestamp: timestamp,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return false, fmt.Errorf("send subscribe: %w", err)
	}
	log.Info().Strs("channels", f.channels).Strs("products", f.productIDs).Msg("subscribed to price feed")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsCloseError(readErr, websocket.CloseNormalClosure) {
				return true, nil
			}
			if ctx.Err() != nil {
				return true, nil
			}
			return false, fmt.Errorf("read: %w", readErr)
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Warn().Err(err).Msg("failed to parse price feed message envelope")
			continue
		}
		if envelope.Type != "ticker" {
			continue
		}

		var tick tickerMessage
		if err := json.Unmarshal(data, &tick); err != nil {
			log.Warn().Err(err).Msg("failed to parse ticker message")
			continue
		}
		price, parseErr := strconv.ParseFloat(tick.Price, 64)
		if parseErr != nil {
			log.Warn().Err(parseErr).Str("raw", tick.Price).Msg("failed to parse ticker price")
			continue
		}
		at, parseErr := time.Parse(time.RFC3339, tick.Time)
		if parseErr != nil {
			at = time.Now()
		}
		f.ticker.Update(price, at)
	}
}
