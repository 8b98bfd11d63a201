package txbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clp-rebalancer/internal/rpcfanout"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// callJSONRPC races/fails-over method+params across mode's endpoints
// via C1, decoding result into out.
func callJSONRPC(ctx context.Context, mode rpcfanout.Mode, method string, params []interface{}, out interface{}) error {
	_, err := rpcfanout.Call(ctx, mode, 0, func(ctx context.Context, endpointURL string) (struct{}, error) {
		req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
		body, err := json.Marshal(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("marshal rpc request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("create rpc request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(httpReq)
		if err != nil {
			return struct{}{}, fmt.Errorf("rpc http request: %w", err)
		}
		defer resp.Body.Close()

		var decoded rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return struct{}{}, fmt.Errorf("decode rpc response: %w", err)
		}
		if decoded.Error != nil {
			return struct{}{}, decoded.Error
		}
		if out != nil {
			if err := json.Unmarshal(decoded.Result, out); err != nil {
				return struct{}{}, fmt.Errorf("decode rpc result: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// blockhashResult is getLatestBlockhash's result shape.
type blockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

func getLatestBlockhash(ctx context.Context, mode rpcfanout.Mode) (blockhashResult, error) {
	var out blockhashResult
	err := callJSONRPC(ctx, mode, "getLatestBlockhash", []interface{}{map[string]string{"commitment": "confirmed"}}, &out)
	return out, err
}

// simulateResult is simulateTransaction's result shape, trimmed to the
// fields the builder consumes.
type simulateResult struct {
	Value struct {
		Err           interface{} `json:"err"`
		UnitsConsumed *uint64     `json:"unitsConsumed"`
		Logs          []string    `json:"logs"`
	} `json:"value"`
}

func simulateTransaction(ctx context.Context, mode rpcfanout.Mode, serializedTxBase64 string) (simulateResult, error) {
	var out simulateResult
	params := []interface{}{
		serializedTxBase64,
		map[string]interface{}{
			"encoding":       "base64",
			"sigVerify":      false,
			"replaceRecentBlockhash": true,
		},
	}
	err := callJSONRPC(ctx, mode, "simulateTransaction", params, &out)
	return out, err
}

func sendTransaction(ctx context.Context, mode rpcfanout.Mode, signedTxBase64 string) (string, error) {
	var signature string
	params := []interface{}{
		signedTxBase64,
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "processed",
			"maxRetries":          3,
		},
	}
	err := callJSONRPC(ctx, mode, "sendTransaction", params, &signature)
	return signature, err
}

// signatureStatus is one entry of getSignatureStatuses' result.Value.
type signatureStatus struct {
	ConfirmationStatus string      `json:"confirmationStatus"`
	Err                interface{} `json:"err"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

func getSignatureStatus(ctx context.Context, mode rpcfanout.Mode, signature string) (*signatureStatus, error) {
	var out signatureStatusesResult
	params := []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": true},
	}
	if err := callJSONRPC(ctx, mode, "getSignatureStatuses", params, &out); err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// confirmTransaction polls getSignatureStatuses until the transaction
// reaches at least "confirmed" status, ctx is cancelled, or the
// deadline elapses.
func confirmTransaction(ctx context.Context, mode rpcfanout.Mode, signature string, pollInterval, deadline time.Duration) (lastStatus string, err error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, statusErr := getSignatureStatus(deadlineCtx, mode, signature)
		if statusErr == nil && status != nil {
			lastStatus = status.ConfirmationStatus
			if status.Err != nil {
				return lastStatus, fmt.Errorf("transaction failed on-chain: %v", status.Err)
			}
			if lastStatus == "confirmed" || lastStatus == "finalized" {
				return lastStatus, nil
			}
		}

		select {
		case <-deadlineCtx.Done():
			return lastStatus, deadlineCtx.Err()
		case <-ticker.C:
		}
	}
}
