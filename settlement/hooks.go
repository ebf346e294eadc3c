package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-router/types"
)

// HookType tags a classified hook address.
type HookType string

const (
	HookTypeTransfer HookType = "transfer"
	HookTypeSplit    HookType = "split"
	HookTypeCustom   HookType = "custom"
)

// Static gas overheads per built-in hook type, added on top of the base
// router gas. Calibrated against the audited hook implementations.
var hookGasOverhead = map[HookType]uint64{
	HookTypeTransfer: 40_000,
	HookTypeSplit:    65_000,
}

// splitMaxBasisPoints is the denominator of split shares; shares summing
// above it would over-distribute funds and must be rejected off-chain.
const splitMaxBasisPoints = 10_000

// HookClassification is the result of matching a hook address against a
// network's known-hook map.
type HookClassification struct {
	BuiltIn     bool
	Type        HookType
	GasOverhead uint64
}

// ClassifyHook decides whether the hook is a recognized, audited built-in
// (enabling cheap static validation) or an unknown custom hook (requiring
// live simulation). Comparison is by exact address; unknown addresses are
// always custom.
func ClassifyHook(cfg *types.NetworkConfig, hook common.Address) HookClassification {
	for name, addr := range cfg.Hooks {
		if !common.IsHexAddress(addr) || common.HexToAddress(addr) != hook {
			continue
		}
		switch strings.ToLower(name) {
		case types.HookNameTransfer:
			return HookClassification{BuiltIn: true, Type: HookTypeTransfer, GasOverhead: hookGasOverhead[HookTypeTransfer]}
		case types.HookNameSplit:
			return HookClassification{BuiltIn: true, Type: HookTypeSplit, GasOverhead: hookGasOverhead[HookTypeSplit]}
		}
	}
	return HookClassification{BuiltIn: false, Type: HookTypeCustom}
}

// HookValidation is the result of static hook-data validation.
type HookValidation struct {
	Valid  bool
	Reason string
}

var (
	addressSliceType = mustABIType("address[]")
	uint256SliceType = mustABIType("uint256[]")

	splitDataArgs = abi.Arguments{
		{Name: "recipients", Type: addressSliceType},
		{Name: "sharesBps", Type: uint256SliceType},
	}
)

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// ValidateHookData re-implements the built-in hooks' on-chain business
// rules so invalid requests are rejected before any gas is spent.
// hookAmount is the post-fee amount the hook will receive.
func ValidateHookData(cls HookClassification, hookData []byte, hookAmount *big.Int) HookValidation {
	if !cls.BuiltIn {
		return HookValidation{Valid: false, Reason: "custom hooks cannot be statically validated"}
	}
	if hookAmount == nil || hookAmount.Sign() < 0 {
		return HookValidation{Valid: false, Reason: "hook amount must be non-negative"}
	}

	switch cls.Type {
	case HookTypeTransfer:
		// The transfer hook forwards the full post-fee amount to payTo
		// and takes no parameters.
		if len(hookData) != 0 {
			return HookValidation{Valid: false, Reason: "transfer hook takes no hook data"}
		}
		return HookValidation{Valid: true}

	case HookTypeSplit:
		return validateSplitData(hookData)

	default:
		return HookValidation{Valid: false, Reason: fmt.Sprintf("unknown built-in hook type %q", cls.Type)}
	}
}

// validateSplitData decodes abi(address[] recipients, uint256[] sharesBps)
// and enforces the split invariants: matching non-empty arrays, non-zero
// recipients, positive shares, and a basis-point sum of at most 10000.
func validateSplitData(hookData []byte) HookValidation {
	invalid := func(format string, args ...interface{}) HookValidation {
		return HookValidation{Valid: false, Reason: fmt.Sprintf(format, args...)}
	}

	values, err := splitDataArgs.Unpack(hookData)
	if err != nil {
		return invalid("split hook data does not decode: %v", err)
	}

	recipients, ok := values[0].([]common.Address)
	if !ok {
		return invalid("split hook data: recipients is not address[]")
	}
	shares, ok := values[1].([]*big.Int)
	if !ok {
		return invalid("split hook data: sharesBps is not uint256[]")
	}

	if len(recipients) == 0 {
		return invalid("split hook data: at least one recipient required")
	}
	if len(recipients) != len(shares) {
		return invalid("split hook data: %d recipients but %d shares", len(recipients), len(shares))
	}

	sum := new(big.Int)
	for i, r := range recipients {
		if r == (common.Address{}) {
			return invalid("split hook data: recipient %d is the zero address", i)
		}
		if shares[i] == nil || shares[i].Sign() <= 0 {
			return invalid("split hook data: share %d must be positive", i)
		}
		sum.Add(sum, shares[i])
	}
	if sum.Cmp(big.NewInt(splitMaxBasisPoints)) > 0 {
		return invalid("split hook data: shares sum to %s bps, exceeding %d", sum, splitMaxBasisPoints)
	}

	return HookValidation{Valid: true}
}

// EncodeSplitData packs split-hook parameters. Exposed for resource
// servers and tests building hook data.
func EncodeSplitData(recipients []common.Address, sharesBps []*big.Int) ([]byte, error) {
	return splitDataArgs.Pack(recipients, sharesBps)
}
