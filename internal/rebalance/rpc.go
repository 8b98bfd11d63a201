package rebalance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clp-rebalancer/internal/rpcfanout"
)

// rpcRequest/rpcResponse mirror the JSON-RPC envelope C4 speaks;
// duplicated here rather than imported since txbuilder keeps its own
// unexported.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message) }

var httpClient = &http.Client{Timeout: 15 * time.Second}

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

// signatureInfo is one entry of getSignaturesForAddress's result.
type signatureInfo struct {
	Signature string `json:"signature"`
	BlockTime *int64 `json:"blockTime"`
}

// getSignaturesForAddress returns up to limit signatures for address,
// newest first (the RPC's native order).
func getSignaturesForAddress(ctx context.Context, mode rpcfanout.Mode, address string, limit int) ([]signatureInfo, error) {
	var out []signatureInfo
	params := []interface{}{address, map[string]interface{}{"limit": limit}}
	err := callJSONRPC(ctx, mode, "getSignaturesForAddress", params, &out)
	return out, err
}

// getBalance returns a wallet's native SOL balance in lamports.
func getBalance(ctx context.Context, mode rpcfanout.Mode, address string) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	params := []interface{}{address, map[string]string{"commitment": "confirmed"}}
	if err := callJSONRPC(ctx, mode, "getBalance", params, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// getTokenAccountBalance returns the base-unit amount owner holds of
// mint, via its associated token account(s). Zero is returned (not an
// error) when the owner holds no account for that mint.
func getTokenAccountBalance(ctx context.Context, mode rpcfanout.Mode, owner, mint string) (uint64, error) {
	var out struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := callJSONRPC(ctx, mode, "getTokenAccountsByOwner", params, &out); err != nil {
		return 0, err
	}
	var total uint64
	for _, entry := range out.Value {
		amount, err := strconv.ParseUint(entry.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += amount
	}
	return total, nil
}
