// Package errs classifies errors surfaced by the RPC, AMM, and
// transaction layers into named kinds. The RPC fanout records a kind
// for each failed endpoint, and the close executor acts on
// KindOnChainStateMissing; otherwise the rebalance loops log every
// error the same way and retry on their next tick.
package errs

import "strings"

// Kind is one of the error kinds named in the error-handling design.
type Kind int

const (
	KindUnknown Kind = iota
	// Transient covers network timeouts, endpoint errors, and
	// simulation rate-limits. Policy: absorb at the task boundary,
	// the loop retries on its next tick.
	KindTransient
	// OnChainStateMissing is AccountNotFound or equivalent seen while
	// closing. Policy: treat the position as already closed.
	KindOnChainStateMissing
	// OutOfRangeFalseAlarm is the close executor's second
	// should-rebalance check failing because price returned into
	// range. Policy: clear position_to_close, no retry.
	KindOutOfRangeFalseAlarm
	// InvalidInput is a malformed pubkey, missing env var, or
	// malformed external payload. Policy: surface as a client error,
	// never enters a mutation path.
	KindInvalidInput
	// SignerError is a signer that cannot be decoded or produced. The
	// transaction fails; the loop that submitted it logs the error and
	// retries on its next tick, with no extra back-off.
	KindSignerError
	// Fatal is a poisoned store or a permanently closed outbound
	// channel. Loops log it like any other error and keep running;
	// nothing exits or restarts on it.
	KindFatal
	// Timeout is a distinct per-call timeout expiry, tracked
	// separately from other transient failures for fanout reporting.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindOnChainStateMissing:
		return "on_chain_state_missing"
	case KindOutOfRangeFalseAlarm:
		return "out_of_range_false_alarm"
	case KindInvalidInput:
		return "invalid_input"
	case KindSignerError:
		return "signer_error"
	case KindFatal:
		return "fatal"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Classify maps a raw error into a Kind by matching known substrings,
// lower-cased, against the error's message. Unmatched errors default
// to Transient so loops retry rather than wedge.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	raw := strings.ToLower(err.Error())

	switch {
	case contains(raw, "accountnotfound"), contains(raw, "account not found"):
		return KindOnChainStateMissing
	case contains(raw, "out of range"), contains(raw, "returned into range"):
		return KindOutOfRangeFalseAlarm
	case contains(raw, "invalid pubkey"), contains(raw, "missing env"), contains(raw, "malformed"):
		return KindInvalidInput
	case contains(raw, "invalidsigner"), contains(raw, "failed to decode signer"), contains(raw, "programmatic keypair"):
		return KindSignerError
	case contains(raw, "mutex poisoned"), contains(raw, "store poisoned"), contains(raw, "channel closed"):
		return KindFatal
	case contains(raw, "context deadline exceeded"), contains(raw, "timeout"), contains(raw, "timed out"):
		return KindTimeout
	case contains(raw, "connection refused"), contains(raw, "rate limit"), contains(raw, "429"),
		contains(raw, "blockhash not found"), contains(raw, "block height exceeded"), contains(raw, "slippage"):
		return KindTransient
	default:
		return KindTransient
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

// EndpointFailure records one endpoint's outcome inside an
// AllEndpointsFailed error.
type EndpointFailure struct {
	Domain string
	Kind   Kind
	Err    error
}

// AllEndpointsFailedError is returned by the RPC fanout when every
// endpoint in a mode's URL list failed or timed out.
type AllEndpointsFailedError struct {
	LastErrors []EndpointFailure
}

func (e *AllEndpointsFailedError) Error() string {
	var b strings.Builder
	b.WriteString("all endpoints failed: ")
	for i, f := range e.LastErrors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Domain)
		b.WriteString(" (")
		b.WriteString(f.Kind.String())
		b.WriteString(")")
	}
	return b.String()
}
