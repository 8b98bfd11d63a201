package txbuilder

import "encoding/binary"

// ComputeBudgetProgramID is the well-known compute budget program.
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// PriorityLevelKind tags the priority-fee request's level, per
// spec.md §4.4's PriorityFee sum type.
type PriorityLevelKind int

const (
	PriorityNone PriorityLevelKind = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityHighest
	PriorityCustom
	PriorityRecommended
)

// PriorityLevel is the tagged union of a priority-fee request: every
// kind except Custom carries no payload, Custom carries an explicit
// micro-lamports-per-CU value.
type PriorityLevel struct {
	Kind            PriorityLevelKind
	CustomMicroLamports uint64
}

func (p PriorityLevel) String() string {
	switch p.Kind {
	case PriorityNone:
		return "none"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "veryHigh"
	case PriorityCustom:
		return "custom"
	default:
		return "recommended"
	}
}

// buildSetComputeUnitLimit encodes instruction type 2 (SetComputeUnitLimit):
// [1 byte type][4 bytes LE limit].
func buildSetComputeUnitLimit(limit uint32) []byte {
	b := make([]byte, 5)
	b[0] = 2
	binary.LittleEndian.PutUint32(b[1:], limit)
	return b
}

// buildSetComputeUnitPrice encodes instruction type 3 (SetComputeUnitPrice):
// [1 byte type][8 bytes LE microLamports per CU].
func buildSetComputeUnitPrice(microLamportsPerCU uint64) []byte {
	b := make([]byte, 9)
	b[0] = 3
	binary.LittleEndian.PutUint64(b[1:], microLamportsPerCU)
	return b
}
