package txbuilder

import (
	"fmt"

	"github.com/mr-tron/base58"

	"clp-rebalancer/internal/ammclient"
)

// accountEntry tracks one account's merged signer/writable privileges
// while CompileMessage is building the ordered account-key table.
type accountEntry struct {
	pubkey     string
	isSigner   bool
	isWritable bool
}

// CompileMessage assembles a legacy Solana message from a flat
// instruction list, a fee payer, and a recent blockhash, mirroring
// solana_sdk::Message::new_with_blockhash's account-ordering and
// wire-encoding rules: fee payer first, then signer-writable,
// signer-readonly, nonsigner-writable, nonsigner-readonly.
func CompileMessage(feePayer string, instructions []ammclient.Instruction, recentBlockhash string) ([]byte, []string, error) {
	order := []string{feePayer}
	entries := map[string]*accountEntry{
		feePayer: {pubkey: feePayer, isSigner: true, isWritable: true},
	}

	addAccount := func(pubkey string, isSigner, isWritable bool) {
		if e, ok := entries[pubkey]; ok {
			e.isSigner = e.isSigner || isSigner
			e.isWritable = e.isWritable || isWritable
			return
		}
		entries[pubkey] = &accountEntry{pubkey: pubkey, isSigner: isSigner, isWritable: isWritable}
		order = append(order, pubkey)
	}

	for _, ix := range instructions {
		addAccount(ix.ProgramID, false, false)
		for _, acc := range ix.Accounts {
			addAccount(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
	}

	// Stable partition into the four privilege buckets, preserving
	// first-seen order within each bucket (fee payer already first).
	var signerWritable, signerReadonly, nonSignerWritable, nonSignerReadonly []string
	for _, pubkey := range order {
		e := entries[pubkey]
		switch {
		case pubkey == feePayer:
			continue
		case e.isSigner && e.isWritable:
			signerWritable = append(signerWritable, pubkey)
		case e.isSigner && !e.isWritable:
			signerReadonly = append(signerReadonly, pubkey)
		case !e.isSigner && e.isWritable:
			nonSignerWritable = append(nonSignerWritable, pubkey)
		default:
			nonSignerReadonly = append(nonSignerReadonly, pubkey)
		}
	}

	accountKeys := append([]string{feePayer}, signerWritable...)
	accountKeys = append(accountKeys, signerReadonly...)
	accountKeys = append(accountKeys, nonSignerWritable...)
	accountKeys = append(accountKeys, nonSignerReadonly...)

	numRequiredSignatures := 1 + len(signerWritable) + len(signerReadonly)
	numReadonlySignedAccounts := len(signerReadonly)
	numReadonlyUnsignedAccounts := len(nonSignerReadonly)

	indexOf := make(map[string]int, len(accountKeys))
	for i, k := range accountKeys {
		indexOf[k] = i
	}

	var buf []byte
	buf = append(buf, byte(numRequiredSignatures), byte(numReadonlySignedAccounts), byte(numReadonlyUnsignedAccounts))
	buf = append(buf, encodeCompactU16(len(accountKeys))...)
	for _, k := range accountKeys {
		decoded, err := base58.Decode(k)
		if err != nil || len(decoded) != 32 {
			return nil, nil, fmt.Errorf("invalid account pubkey %q: %w", k, err)
		}
		buf = append(buf, decoded...)
	}

	blockhashBytes, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhashBytes) != 32 {
		return nil, nil, fmt.Errorf("invalid recent blockhash %q: %w", recentBlockhash, err)
	}
	buf = append(buf, blockhashBytes...)

	buf = append(buf, encodeCompactU16(len(instructions))...)
	for _, ix := range instructions {
		programIdx, ok := indexOf[ix.ProgramID]
		if !ok {
			return nil, nil, fmt.Errorf("program id %q missing from account table", ix.ProgramID)
		}
		buf = append(buf, byte(programIdx))
		buf = append(buf, encodeCompactU16(len(ix.Accounts))...)
		for _, acc := range ix.Accounts {
			idx, ok := indexOf[acc.Pubkey]
			if !ok {
				return nil, nil, fmt.Errorf("account %q missing from account table", acc.Pubkey)
			}
			buf = append(buf, byte(idx))
		}
		buf = append(buf, encodeCompactU16(len(ix.Data))...)
		buf = append(buf, ix.Data...)
	}

	signers := accountKeys[:numRequiredSignatures]
	return buf, signers, nil
}

// encodeCompactU16 is Solana's variable-length integer encoding used
// throughout the wire format for array lengths.
func encodeCompactU16(n int) []byte {
	var out []byte
	v := uint32(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
