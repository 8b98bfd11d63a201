package txbuilder

import "fmt"

// SimulationFailedError wraps a failed or reverting simulateTransaction
// call, per spec.md §4.4.
type SimulationFailedError struct {
	Detail string
}

func (e *SimulationFailedError) Error() string {
	return fmt.Sprintf("simulation failed: %s", e.Detail)
}

// InvalidSignerError reports a base64 additional-signer blob that
// failed to decode into an ed25519 keypair.
type InvalidSignerError struct {
	Cause error
}

func (e *InvalidSignerError) Error() string {
	return fmt.Sprintf("invalid signer: %v", e.Cause)
}

func (e *InvalidSignerError) Unwrap() error { return e.Cause }

// BlockhashFetchError reports a failure to obtain a recent blockhash
// from any speed_priority endpoint.
type BlockhashFetchError struct {
	Cause error
}

func (e *BlockhashFetchError) Error() string {
	return fmt.Sprintf("blockhash fetch failed: %v", e.Cause)
}

func (e *BlockhashFetchError) Unwrap() error { return e.Cause }

// SendFailedError reports a submission rejected before it reached the
// network (not a confirmation timeout).
type SendFailedError struct {
	Cause error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendFailedError) Unwrap() error { return e.Cause }

// NotConfirmedError reports a transaction that was sent but whose
// confirmation could not be observed before giving up.
type NotConfirmedError struct {
	Signature  string
	LastStatus string
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed: %s", e.Signature, e.LastStatus)
}
