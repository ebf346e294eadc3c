// Package settlement implements the decision-and-execution engine of the
// x402 settlement-router extension: the commitment scheme binding every
// settlement parameter to one signature, the router whitelist, request
// parsing, hook gas validation and the retrying execution pipeline.
package settlement

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/x402-router/types"
)

// ProtocolVersion is the literal bound into every commitment. It must
// match the deployed router contract byte for byte.
const ProtocolVersion = "x402-router/1"

// CommitmentParams are the settlement parameters bound by one signature.
// Every field participates in the commitment hash in a fixed,
// contract-matching order; reordering or omitting a field breaks
// on-chain/off-chain agreement.
type CommitmentParams struct {
	ChainID        *big.Int
	Router         common.Address
	Token          common.Address
	Payer          common.Address
	Value          *big.Int
	ValidAfter     *big.Int
	ValidBefore    *big.Int
	Salt           [32]byte
	PayTo          common.Address
	FacilitatorFee *big.Int
	Hook           common.Address
	HookData       []byte
}

// ValidateCommitmentParams rejects malformed parameters before they are
// hashed, so malformed input never silently produces a commitment.
func ValidateCommitmentParams(p *CommitmentParams) error {
	switch {
	case p == nil:
		return types.NewError(types.ErrInvalidCommitment, "commitment params are nil")
	case p.ChainID == nil || p.ChainID.Sign() <= 0:
		return types.NewError(types.ErrInvalidCommitment, "chain id must be a positive integer")
	case p.Router == (common.Address{}):
		return types.NewError(types.ErrInvalidCommitment, "router address is required")
	case p.Token == (common.Address{}):
		return types.NewError(types.ErrInvalidCommitment, "token address is required")
	case p.Payer == (common.Address{}):
		return types.NewError(types.ErrInvalidCommitment, "payer address is required")
	case p.PayTo == (common.Address{}):
		return types.NewError(types.ErrInvalidCommitment, "payTo address is required")
	case p.Value == nil || p.Value.Sign() < 0:
		return types.NewError(types.ErrInvalidCommitment, "value must be a non-negative integer")
	case p.FacilitatorFee == nil || p.FacilitatorFee.Sign() < 0:
		return types.NewError(types.ErrInvalidCommitment, "facilitator fee must be a non-negative integer")
	case p.ValidAfter == nil || p.ValidAfter.Sign() < 0:
		return types.NewError(types.ErrInvalidCommitment, "validAfter must be a non-negative integer")
	case p.ValidBefore == nil || p.ValidBefore.Cmp(p.ValidAfter) <= 0:
		return types.NewError(types.ErrInvalidCommitment, "validBefore must be greater than validAfter")
	}
	return nil
}

// ComputeCommitment derives the settlement commitment: the keccak256 of
// the packed encoding of every settlement parameter, with the hook data
// included as its own hash so arbitrary-length data still packs to a
// fixed size. The result doubles as the authorization nonce the payer
// signs, so no party can alter router, fee, hook or hook data after
// signing without invalidating the signature.
func ComputeCommitment(p *CommitmentParams) common.Hash {
	hookDataHash := crypto.Keccak256(p.HookData)

	packed := bytes.Join([][]byte{
		[]byte(ProtocolVersion),
		common.LeftPadBytes(p.ChainID.Bytes(), 32),
		p.Router.Bytes(),
		p.Token.Bytes(),
		p.Payer.Bytes(),
		common.LeftPadBytes(p.Value.Bytes(), 32),
		common.LeftPadBytes(p.ValidAfter.Bytes(), 32),
		common.LeftPadBytes(p.ValidBefore.Bytes(), 32),
		p.Salt[:],
		p.PayTo.Bytes(),
		common.LeftPadBytes(p.FacilitatorFee.Bytes(), 32),
		p.Hook.Bytes(),
		hookDataHash,
	}, nil)

	return crypto.Keccak256Hash(packed)
}

// CommitmentFromRequest rebuilds the commitment parameters for a parsed
// settlement request on the given network. Used by the facilitator for
// defense-in-depth verification before spending gas.
func CommitmentFromRequest(cfg *types.NetworkConfig, req *types.SettlementRequest) (*CommitmentParams, error) {
	p := &CommitmentParams{
		ChainID:        new(big.Int).SetUint64(cfg.ChainID),
		Router:         req.Router,
		Token:          req.Token,
		Payer:          req.Payer,
		Value:          req.Value,
		ValidAfter:     req.ValidAfter,
		ValidBefore:    req.ValidBefore,
		Salt:           req.Salt,
		PayTo:          req.PayTo,
		FacilitatorFee: req.FacilitatorFee,
		Hook:           req.Hook,
		HookData:       req.HookData,
	}
	if err := ValidateCommitmentParams(p); err != nil {
		return nil, err
	}
	return p, nil
}
