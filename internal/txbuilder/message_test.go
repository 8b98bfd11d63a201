package txbuilder

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"

	"clp-rebalancer/internal/ammclient"
)

func validPubkey(seed byte) string {
	raw := bytes.Repeat([]byte{seed}, 32)
	return base58.Encode(raw)
}

func TestEncodeCompactU16SmallValues(t *testing.T) {
	cases := map[int][]byte{
		0:   {0x00},
		1:   {0x01},
		127: {0x7f},
	}
	for n, want := range cases {
		got := encodeCompactU16(n)
		if !bytes.Equal(got, want) {
			t.Errorf("encodeCompactU16(%d) = %x, want %x", n, got, want)
		}
	}
}

func TestEncodeCompactU16MultiByte(t *testing.T) {
	got := encodeCompactU16(128)
	want := []byte{0x80, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeCompactU16(128) = %x, want %x", got, want)
	}
}

func TestCompileMessageOrdersFeePayerFirst(t *testing.T) {
	feePayer := validPubkey(1)
	programID := validPubkey(2)
	writableAccount := validPubkey(3)
	blockhash := validPubkey(9)

	instructions := []ammclient.Instruction{
		{
			ProgramID: programID,
			Accounts: []ammclient.AccountMeta{
				{Pubkey: writableAccount, IsSigner: false, IsWritable: true},
			},
			Data: []byte{1, 2, 3},
		},
	}

	message, signers, err := CompileMessage(feePayer, instructions, blockhash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signers) != 1 || signers[0] != feePayer {
		t.Fatalf("expected fee payer as sole required signer, got %v", signers)
	}

	numRequiredSignatures := message[0]
	if numRequiredSignatures != 1 {
		t.Errorf("expected 1 required signature, got %d", numRequiredSignatures)
	}
}

func TestCompileMessageRejectsInvalidPubkey(t *testing.T) {
	_, _, err := CompileMessage("not-base58-and-wrong-length", nil, validPubkey(9))
	if err == nil {
		t.Fatalf("expected error for invalid fee payer pubkey")
	}
}

func TestCompileMessageMultipleSignersOrderedAfterFeePayer(t *testing.T) {
	feePayer := validPubkey(1)
	otherSigner := validPubkey(4)
	programID := validPubkey(2)
	blockhash := validPubkey(9)

	instructions := []ammclient.Instruction{
		{
			ProgramID: programID,
			Accounts: []ammclient.AccountMeta{
				{Pubkey: otherSigner, IsSigner: true, IsWritable: true},
			},
			Data: []byte{},
		},
	}

	_, signers, err := CompileMessage(feePayer, instructions, blockhash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signers) != 2 || signers[0] != feePayer || signers[1] != otherSigner {
		t.Fatalf("expected [feePayer, otherSigner], got %v", signers)
	}
}
