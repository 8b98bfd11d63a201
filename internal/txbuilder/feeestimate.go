package txbuilder

import (
	"context"

	"clp-rebalancer/internal/rpcfanout"
)

// priorityFeeEstimateResult mirrors the Helius-style
// getPriorityFeeEstimate response.
type priorityFeeEstimateResult struct {
	PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
}

// estimatePriorityFee asks the external estimator for a
// micro-lamports-per-CU estimate at the given level, for a base64
// transaction. Returns ok=false if the estimator returned nothing
// (the builder then skips the price instruction, per spec.md §4.4).
func estimatePriorityFee(ctx context.Context, mode rpcfanout.Mode, serializedTxBase64 string, level PriorityLevel) (microLamportsPerCU uint64, ok bool, err error) {
	if level.Kind == PriorityNone {
		return 0, false, nil
	}
	if level.Kind == PriorityCustom {
		return level.CustomMicroLamports, true, nil
	}

	params := []interface{}{
		map[string]interface{}{
			"transaction": serializedTxBase64,
			"options": map[string]interface{}{
				"priorityLevel":      level.String(),
				"transactionEncoding": "base64",
			},
		},
	}

	var out priorityFeeEstimateResult
	callErr := callJSONRPC(ctx, mode, "getPriorityFeeEstimate", params, &out)
	if callErr != nil {
		return 0, false, callErr
	}
	if out.PriorityFeeEstimate <= 0 {
		return 0, false, nil
	}
	return uint64(out.PriorityFeeEstimate), true, nil
}
