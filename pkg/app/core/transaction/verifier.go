package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/nexusdex/pkg/crypto"
)

var ErrBadSignature = errors.New("signature does not match sender")

// Verified is a transaction whose signature recovered to its sender
type Verified struct {
	Tx      *SignedTransaction
	Message crypto.TypedMessage
	Signer  common.Address
}

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

func (v *Verifier) Signer() *crypto.EIP712Signer { return v.eip712Signer }

// Verify checks structure and signature. The recovered signer is the only
// address the transaction may act for.
func (v *Verifier) Verify(tx *SignedTransaction) (*Verified, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	msg, err := tx.Message()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer, err := v.eip712Signer.Recover(msg, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != msg.Sender() {
		return nil, fmt.Errorf("%w: recovered %s, sender %s", ErrBadSignature, signer.Hex(), msg.Sender().Hex())
	}
	return &Verified{Tx: tx, Message: msg, Signer: signer}, nil
}

// VerifyRaw parses and verifies raw JSON bytes
func (v *Verifier) VerifyRaw(raw []byte) (*Verified, error) {
	tx, err := ParseTransaction(raw)
	if err != nil {
		return nil, err
	}
	return v.Verify(tx)
}
