package types

import (
	"errors"
	"fmt"
)

// X402Error is the structured error carried across package boundaries.
// Code is a stable machine-readable identifier; Message is for humans.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *X402Error) Error() string {
	return e.Message
}

// NewError builds an X402Error with a formatted message.
func NewError(code, format string, args ...interface{}) *X402Error {
	return &X402Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal error codes. These classify failures for retry and reporting
// decisions; they are not part of the outward wire format.
const (
	ErrConfigError         = "CONFIG_ERROR"
	ErrUnknownNetwork      = "UNKNOWN_NETWORK"
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrSettlementExtra     = "INVALID_SETTLEMENT_EXTRA"
	ErrInvalidCommitment   = "INVALID_COMMITMENT"
	ErrRouterNotAllowed    = "ROUTER_NOT_ALLOWED"
	ErrGasValidation       = "GAS_VALIDATION_FAILED"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrRPCError            = "RPC_ERROR"
	ErrNonceConflict       = "NONCE_CONFLICT"
	ErrTransactionReverted = "TRANSACTION_REVERTED"
	ErrUnexpected          = "UNEXPECTED_ERROR"
)

// Outward settlement outcome codes. These are wire-stable strings the
// caller can branch on; do not rename them.
const (
	OutcomeInvalidPaymentRequirements = "invalid_payment_requirements"
	OutcomeInsufficientBalance        = "insufficient_balance"
	OutcomeInvalidSettlementGas       = "invalid_settlement_gas"
	OutcomeInvalidTransactionState    = "invalid_transaction_state"
	OutcomeConfirmationTimedOut       = "tx_confirmation_timed_out"
	OutcomeUnexpectedSettleError      = "unexpected_settle_error"
)

// transientCodes are the only internal codes the retry layer may retry.
// Validation and security failures are deliberately absent.
var transientCodes = map[string]bool{
	ErrRPCError:      true,
	ErrNonceConflict: true,
}

// IsTransient reports whether err is a transient failure that a bounded
// retry can reasonably hope to clear.
func IsTransient(err error) bool {
	var xerr *X402Error
	if errors.As(err, &xerr) {
		return transientCodes[xerr.Code]
	}
	return false
}

// ErrorCode extracts the X402Error code from err, or ErrUnexpected when
// err carries no classification.
func ErrorCode(err error) string {
	var xerr *X402Error
	if errors.As(err, &xerr) {
		return xerr.Code
	}
	return ErrUnexpected
}
