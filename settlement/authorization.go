package settlement

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/vitwit/x402-router/types"
)

// authorizationTypedData builds the EIP-712 payload the payer signs: a
// transfer-with-authorization on the token, moving value to the router,
// with the settlement commitment as nonce.
func authorizationTypedData(cfg *types.NetworkConfig, p *CommitmentParams, nonce common.Hash) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              cfg.DefaultAsset.EIP712Name,
			Version:           cfg.DefaultAsset.EIP712Version,
			ChainId:           (*math.HexOrDecimal256)(p.ChainID),
			VerifyingContract: p.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        p.Payer.Hex(),
			"to":          p.Router.Hex(),
			"value":       (*math.HexOrDecimal256)(p.Value),
			"validAfter":  (*math.HexOrDecimal256)(p.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(p.ValidBefore),
			"nonce":       nonce.Hex(),
		},
	}
}

// authorizationDigest computes the final EIP-712 digest:
// keccak256("\x19\x01" || domainSeparator || messageHash).
func authorizationDigest(cfg *types.NetworkConfig, p *CommitmentParams, nonce common.Hash) ([]byte, error) {
	typedData := authorizationTypedData(cfg, p, nonce)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct("TransferWithAuthorization", typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	raw := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(raw), nil
}

// VerifyAuthorization performs the defense-in-depth checks before any
// gas is spent: the authorization nonce must equal the re-derived
// commitment, the validity window must be open at now, and the signature
// must recover to the payer.
func VerifyAuthorization(cfg *types.NetworkConfig, req *types.SettlementRequest, now time.Time) error {
	p, err := CommitmentFromRequest(cfg, req)
	if err != nil {
		return err
	}

	commitment := ComputeCommitment(p)
	if req.Nonce != commitment {
		return types.NewError(types.ErrInvalidCommitment,
			"authorization nonce %s does not match settlement commitment %s",
			req.Nonce.Hex(), commitment.Hex())
	}

	ts := big.NewInt(now.Unix())
	if ts.Cmp(req.ValidAfter) <= 0 {
		return types.NewError(types.ErrInvalidCommitment, "authorization not yet valid")
	}
	if ts.Cmp(req.ValidBefore) >= 0 {
		return types.NewError(types.ErrInvalidCommitment, "authorization expired")
	}

	signer, err := recoverSigner(cfg, p, commitment, req.Signature)
	if err != nil {
		return err
	}
	if signer != req.Payer {
		return types.NewError(types.ErrInvalidCommitment,
			"signature recovers to %s, expected payer %s", signer.Hex(), req.Payer.Hex())
	}
	return nil
}

func recoverSigner(cfg *types.NetworkConfig, p *CommitmentParams, nonce common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, types.NewError(types.ErrInvalidCommitment,
			"signature must be 65 bytes, got %d", len(signature))
	}

	digest, err := authorizationDigest(cfg, p, nonce)
	if err != nil {
		return common.Address{}, types.NewError(types.ErrInvalidCommitment, "build digest: %v", err)
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, types.NewError(types.ErrInvalidCommitment, "signature recovery failed: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignAuthorization is the client-side counterpart: it derives the
// commitment from the settlement parameters, uses it as the
// authorization nonce and signs the typed data. The identical commitment
// code runs on both the signing and verifying side.
func SignAuthorization(priv *ecdsa.PrivateKey, cfg *types.NetworkConfig, p *CommitmentParams) ([]byte, common.Hash, error) {
	if err := ValidateCommitmentParams(p); err != nil {
		return nil, common.Hash{}, err
	}
	nonce := ComputeCommitment(p)

	digest, err := authorizationDigest(cfg, p, nonce)
	if err != nil {
		return nil, common.Hash{}, err
	}

	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("sign authorization: %w", err)
	}
	sig[64] += 27
	return sig, nonce, nil
}
