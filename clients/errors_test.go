package clients

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyRevert(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"nonce too low", errors.New("nonce too low"), RevertNonceConflict, true},
		{"replacement underpriced", errors.New("replacement transaction underpriced"), RevertNonceConflict, true},
		{"already known", errors.New("already known"), RevertNonceConflict, true},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), RevertInsufficientFunds, false},
		{"out of gas", errors.New("out of gas"), RevertOutOfGas, false},
		{"gas allowance", errors.New("gas required exceeds allowance (500000)"), RevertOutOfGas, false},
		{"arithmetic", errors.New("execution reverted: arithmetic underflow or overflow"), RevertArithmetic, false},
		{"hook failure", errors.New("execution reverted: hook execution failed"), RevertHookExecutionFailed, false},
		{"transfer failure", errors.New("execution reverted: transfer failed"), RevertTransferFailed, false},
		{"already settled", errors.New("execution reverted: already settled"), RevertAlreadySettled, false},
		{"generic revert", errors.New("execution reverted"), RevertGeneric, false},
		{"custom error selector", fmt.Errorf("execution reverted: custom error %s", selector("AlreadySettled()")), RevertAlreadySettled, false},
		{"transient rpc", errors.New("dial tcp: connection refused"), RevertRPCError, true},
		{"unrecognized", errors.New("some novel failure"), RevertGeneric, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := ClassifyRevert(tc.err)
			if cls.Code != tc.code {
				t.Fatalf("code = %s, want %s", cls.Code, tc.code)
			}
			if cls.Retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", cls.Retryable, tc.retryable)
			}
		})
	}

	t.Run("nil error", func(t *testing.T) {
		if cls := ClassifyRevert(nil); cls.Code != "" {
			t.Fatalf("nil error classified as %s", cls.Code)
		}
	})
}

func TestClassifyRevertIdempotent(t *testing.T) {
	// Classifying an error whose message already contains our own code
	// string must land in the same family, so wrapped errors re-classify
	// stably.
	inputs := []error{
		errors.New("execution reverted: hook execution failed"),
		errors.New("nonce too low"),
		errors.New("insufficient funds"),
		errors.New("connection reset by peer"),
	}
	for _, err := range inputs {
		first := ClassifyRevert(err)
		second := ClassifyRevert(fmt.Errorf("estimateGas: %s", first.Reason))
		if second.Code != first.Code {
			t.Fatalf("reclassification of %q drifted: %s -> %s", err, first.Code, second.Code)
		}
		if second.Retryable != first.Retryable {
			t.Fatalf("retryability of %q drifted", err)
		}
	}
}
