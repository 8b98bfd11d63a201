package txbuilder

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/ammclient"
	"clp-rebalancer/internal/rpcfanout"
	"clp-rebalancer/internal/wallet"
)

const (
	confirmPollInterval = 500 * time.Millisecond
	confirmDeadline     = 45 * time.Second

	// unitsConsumedSafetyMargin is added to the simulated units_consumed
	// figure before capping compute, per spec.md §4.4.
	unitsConsumedSafetyMargin = 100_000

	// priorityFeeMultiplier scales the estimator's raw micro-lamports-
	// per-CU figure before submission, per spec.md §4.4.
	priorityFeeMultiplier = 1.5
)

// Builder assembles, simulates, prices, and submits transactions built
// from AMM-client instruction bundles (C4).
type Builder struct {
	wallet         *wallet.Wallet
	blockhashCache *BlockhashCache
	speedMode      rpcfanout.Mode
	feeEstimator   rpcfanout.Mode
}

// New constructs a Builder. speedMode and feeEstimator are kept
// distinct so the fee estimate can use a different endpoint set;
// cmd/engine passes rpcfanout.SpeedPriority() and
// rpcfanout.VolumePriority() respectively.
func New(w *wallet.Wallet, blockhashCache *BlockhashCache, speedMode, feeEstimator rpcfanout.Mode) *Builder {
	return &Builder{
		wallet:         w,
		blockhashCache: blockhashCache,
		speedMode:      speedMode,
		feeEstimator:   feeEstimator,
	}
}

// Submit runs the five-step build/simulate/price/submit pipeline and
// returns the confirmed signature or a terminal error.
func (b *Builder) Submit(ctx context.Context, instructions []ammclient.Instruction, additionalSignerBlobs []string, priority PriorityLevel) (string, error) {
	additionalSigners, err := wallet.DecodeAdditionalSigners(additionalSignerBlobs)
	if err != nil {
		return "", &InvalidSignerError{Cause: err}
	}

	blockhash, _, err := b.blockhashCache.Get(ctx)
	if err != nil {
		return "", &BlockhashFetchError{Cause: err}
	}

	signedTx, err := b.compileAndSign(instructions, additionalSigners, blockhash)
	if err != nil {
		return "", fmt.Errorf("assemble transaction: %w", err)
	}

	simResult, err := simulateTransaction(ctx, b.speedMode, signedTx)
	if err != nil {
		return "", &SimulationFailedError{Detail: err.Error()}
	}
	if simResult.Value.Err != nil {
		return "", &SimulationFailedError{Detail: fmt.Sprintf("%v (logs: %v)", simResult.Value.Err, simResult.Value.Logs)}
	}

	finalInstructions := instructions
	if simResult.Value.UnitsConsumed != nil {
		limit := uint32(*simResult.Value.UnitsConsumed) + unitsConsumedSafetyMargin
		finalInstructions = append(finalInstructions, computeBudgetInstruction(buildSetComputeUnitLimit(limit)))

		microLamports, ok, estErr := estimatePriorityFee(ctx, b.feeEstimator, signedTx, priority)
		if estErr != nil {
			log.Warn().Err(estErr).Msg("priority fee estimate failed, submitting without a price instruction")
		} else if ok {
			priced := uint64(float64(microLamports) * priorityFeeMultiplier)
			finalInstructions = append(finalInstructions, computeBudgetInstruction(buildSetComputeUnitPrice(priced)))
		}
	}

	freshBlockhash, _, err := b.blockhashCache.Get(ctx)
	if err != nil {
		return "", &BlockhashFetchError{Cause: err}
	}

	finalSignedTx, err := b.compileAndSign(finalInstructions, additionalSigners, freshBlockhash)
	if err != nil {
		return "", fmt.Errorf("assemble final transaction: %w", err)
	}

	signature, err := sendTransaction(ctx, b.speedMode, finalSignedTx)
	if err != nil {
		return "", &SendFailedError{Cause: err}
	}

	lastStatus, err := confirmTransaction(ctx, b.speedMode, signature, confirmPollInterval, confirmDeadline)
	if err != nil {
		return "", &NotConfirmedError{Signature: signature, LastStatus: lastStatus}
	}

	return signature, nil
}

// computeBudgetInstruction wraps an encoded compute-budget
// instruction payload as an AMM-client Instruction with no accounts.
func computeBudgetInstruction(data []byte) ammclient.Instruction {
	return ammclient.Instruction{
		ProgramID: ComputeBudgetProgramID,
		Accounts:  nil,
		Data:      data,
	}
}

// compileAndSign compiles instructions into a legacy message against
// blockhash, fee-payer is the builder's own wallet, and signs with the
// wallet plus every additional signer whose pubkey the compiled
// message requires.
func (b *Builder) compileAndSign(instructions []ammclient.Instruction, additionalSigners []wallet.AdditionalSigner, blockhash string) (string, error) {
	message, requiredSigners, err := CompileMessage(b.wallet.Address(), instructions, blockhash)
	if err != nil {
		return "", err
	}

	signerByPubkey := map[string][]byte{
		b.wallet.Address(): b.wallet.Sign(message),
	}
	for _, s := range additionalSigners {
		signerByPubkey[base58.Encode(s.PublicKey)] = s.Sign(message)
	}

	var signatures [][]byte
	for _, pubkey := range requiredSigners {
		sig, ok := signerByPubkey[pubkey]
		if !ok {
			return "", fmt.Errorf("no signer available for required account %s", pubkey)
		}
		signatures = append(signatures, sig)
	}

	tx := make([]byte, 0, 1+len(signatures)*64+len(message))
	tx = append(tx, byte(len(signatures)))
	for _, sig := range signatures {
		tx = append(tx, sig...)
	}
	tx = append(tx, message...)

	return base64.StdEncoding.EncodeToString(tx), nil
}
