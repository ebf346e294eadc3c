package clients

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/x402-router/types"
)

// Revert families. These are advisory metadata surfaced to callers; the
// only control-flow decision they drive is retry vs. don't retry.
const (
	RevertHookExecutionFailed = "hook_execution_failed"
	RevertTransferFailed      = "transfer_failed"
	RevertInvalidCommitment   = "invalid_commitment"
	RevertAlreadySettled      = "already_settled"
	RevertArithmetic          = "arithmetic_error"
	RevertOutOfGas            = "out_of_gas"
	RevertInsufficientFunds   = "insufficient_funds"
	RevertNonceConflict       = "nonce_conflict"
	RevertGeneric             = "execution_reverted"
	RevertRPCError            = "rpc_error"
)

// RevertClass is the classification of a failed RPC call or simulation.
type RevertClass struct {
	Code      string
	Reason    string
	Retryable bool
}

// selector returns the 4-byte ABI selector of a custom error signature,
// hex-encoded without prefix.
func selector(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Custom error selectors of the settlement router contract.
var routerErrorSelectors = map[string]string{
	selector("InvalidCommitment()"):    RevertInvalidCommitment,
	selector("AlreadySettled()"):       RevertAlreadySettled,
	selector("HookExecutionFailed()"):  RevertHookExecutionFailed,
	selector("TransferFailed()"):       RevertTransferFailed,
	selector("FeeExceedsValue()"):      RevertInvalidCommitment,
	selector("AuthorizationExpired()"): RevertInvalidCommitment,
}

// substringFamilies maps node error-message fragments to families, in
// match order. String matching is inherently heuristic; unrecognized
// errors fall through to a generic class.
// Idempotence over already-classified messages matters: the underscore
// forms are ClassifyRevert's own output, so re-classifying a wrapped
// error lands in the same family.
var substringFamilies = []struct {
	fragment  string
	code      string
	retryable bool
}{
	{RevertNonceConflict, RevertNonceConflict, true},
	{RevertInsufficientFunds, RevertInsufficientFunds, false},
	{RevertOutOfGas, RevertOutOfGas, false},
	{RevertArithmetic, RevertArithmetic, false},
	{RevertHookExecutionFailed, RevertHookExecutionFailed, false},
	{RevertTransferFailed, RevertTransferFailed, false},
	{RevertInvalidCommitment, RevertInvalidCommitment, false},
	{RevertAlreadySettled, RevertAlreadySettled, false},
	{RevertGeneric, RevertGeneric, false},
	{"nonce too low", RevertNonceConflict, true},
	{"replacement transaction underpriced", RevertNonceConflict, true},
	{"already known", RevertNonceConflict, true},
	{"insufficient funds", RevertInsufficientFunds, false},
	{"out of gas", RevertOutOfGas, false},
	{"gas required exceeds allowance", RevertOutOfGas, false},
	{"arithmetic underflow or overflow", RevertArithmetic, false},
	{"panic: ", RevertArithmetic, false},
	{"hook execution failed", RevertHookExecutionFailed, false},
	{"transfer failed", RevertTransferFailed, false},
	{"invalid commitment", RevertInvalidCommitment, false},
	{"already settled", RevertAlreadySettled, false},
	{"execution reverted", RevertGeneric, false},
}

// transientFragments identify RPC-layer failures worth retrying.
var transientFragments = []string{
	RevertRPCError,
	"connection refused",
	"connection reset",
	"i/o timeout",
	"context deadline exceeded",
	"eof",
	"too many requests",
	"503",
	"502",
	"temporarily unavailable",
	"no such host",
}

// ClassifyRevert turns a raw RPC or simulation error into a short,
// stable classification instead of surfacing the node's error text.
func ClassifyRevert(err error) RevertClass {
	if err == nil {
		return RevertClass{}
	}
	msg := strings.ToLower(err.Error())

	for sel, code := range routerErrorSelectors {
		if strings.Contains(msg, sel) {
			return RevertClass{Code: code, Reason: code}
		}
	}

	for _, f := range substringFamilies {
		if strings.Contains(msg, f.fragment) {
			return RevertClass{Code: f.code, Reason: f.code, Retryable: f.retryable}
		}
	}

	if isTransientMessage(msg) {
		return RevertClass{Code: RevertRPCError, Reason: RevertRPCError, Retryable: true}
	}

	return RevertClass{Code: RevertGeneric, Reason: RevertGeneric}
}

func isTransientMessage(msg string) bool {
	for _, f := range transientFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// WrapRPCError converts a raw client error into the internal taxonomy so
// the retry layer can decide whether to try again.
func WrapRPCError(op string, err error) error {
	if err == nil {
		return nil
	}
	cls := ClassifyRevert(err)
	code := types.ErrRPCError
	switch {
	case cls.Code == RevertNonceConflict:
		code = types.ErrNonceConflict
	case !cls.Retryable:
		code = types.ErrTransactionReverted
	}
	return &types.X402Error{
		Code:    code,
		Message: op + ": " + cls.Reason,
		Data:    err.Error(),
	}
}
