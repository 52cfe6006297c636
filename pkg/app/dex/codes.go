package dex

import (
	"errors"

	"github.com/uhyunpark/nexusdex/pkg/app/core/exchange"
	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/core/transaction"
)

// Result codes carried in TxResult.Code.
const (
	CodeOK uint32 = iota
	CodeMalformed
	CodeBadSignature
	CodeBadNonce
	CodeExpired
	CodeValidation
	CodeNotAuthorized
	CodeInsufficientFunds
	CodeNotFound
	CodeFault
)

var codeNames = map[uint32]string{
	CodeOK:                "ok",
	CodeMalformed:         "malformed",
	CodeBadSignature:      "bad_signature",
	CodeBadNonce:          "bad_nonce",
	CodeExpired:           "expired",
	CodeValidation:        "validation",
	CodeNotAuthorized:     "not_authorized",
	CodeInsufficientFunds: "insufficient_funds",
	CodeNotFound:          "not_found",
	CodeFault:             "fault",
}

func CodeName(code uint32) string {
	if n, ok := codeNames[code]; ok {
		return n
	}
	return "unknown"
}

var (
	ErrBadNonce        = errors.New("nonce mismatch")
	ErrExpired         = errors.New("deadline passed")
	ErrUnknownToken    = errors.New("unknown token")
	ErrNotTransferable = errors.New("token is not transferable")
	ErrNotTokenOwner   = errors.New("only the token owner may mint")
)

func codeFor(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, transaction.ErrMalformed):
		return CodeMalformed
	case errors.Is(err, transaction.ErrBadSignature):
		return CodeBadSignature
	case errors.Is(err, ErrBadNonce):
		return CodeBadNonce
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, exchange.ErrNotAuthorized), errors.Is(err, ErrNotTokenOwner):
		return CodeNotAuthorized
	case errors.Is(err, exchange.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, exchange.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, exchange.ErrFault):
		return CodeFault
	default:
		return CodeValidation
	}
}
