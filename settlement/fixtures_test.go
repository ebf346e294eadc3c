package settlement

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/x402-router/types"
)

// Well-known hardhat dev key; its address is the test payer.
const testPayerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testRouter       = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testTransferHook = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testSplitHook    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testPayTo        = common.HexToAddress("0x4000000000000000000000000000000000000004")
	testCustomHook   = common.HexToAddress("0x5000000000000000000000000000000000000005")
	testToken        = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.HexToECDSA(testPayerKeyHex)
	if err != nil {
		t.Fatalf("load test key: %v", err)
	}
	return k
}

func testNetworkConfig() types.NetworkConfig {
	return types.NetworkConfig{
		Network: types.NetworkBaseSepolia,
		ChainID: 84532,
		Router:  testRouter.Hex(),
		DefaultAsset: types.AssetConfig{
			Address:       testToken.Hex(),
			Symbol:        "USDC",
			Decimals:      6,
			EIP712Name:    "USDC",
			EIP712Version: "2",
		},
		Hooks: map[string]string{
			types.HookNameTransfer: testTransferHook.Hex(),
			types.HookNameSplit:    testSplitHook.Hex(),
		},
	}
}

func testRegistry(t *testing.T) *types.NetworkRegistry {
	t.Helper()
	reg, err := types.NewNetworkRegistry([]types.NetworkConfig{testNetworkConfig()})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func testWhitelist(t *testing.T) *RouterWhitelist {
	t.Helper()
	w, err := NewRouterWhitelist(map[string][]string{
		"base-sepolia": {testRouter.Hex()},
	})
	if err != nil {
		t.Fatalf("build whitelist: %v", err)
	}
	return w
}

func testParams(t *testing.T) *CommitmentParams {
	t.Helper()
	now := time.Now().Unix()
	var salt [32]byte
	copy(salt[:], crypto.Keccak256([]byte("fixture-salt")))
	return &CommitmentParams{
		ChainID:        big.NewInt(84532),
		Router:         testRouter,
		Token:          testToken,
		Payer:          crypto.PubkeyToAddress(testKey(t).PublicKey),
		Value:          big.NewInt(1_000_000),
		ValidAfter:     big.NewInt(now - 3600),
		ValidBefore:    big.NewInt(now + 3600),
		Salt:           salt,
		PayTo:          testPayTo,
		FacilitatorFee: big.NewInt(10_000),
		Hook:           testTransferHook,
		HookData:       nil,
	}
}

// signedRequest builds a fully signed wire request for the params: the
// commitment becomes the authorization nonce and the payload carries the
// versioned settlement-router extension.
func signedRequest(t *testing.T, cfg *types.NetworkConfig, p *CommitmentParams) *types.SettleRequest {
	t.Helper()
	sig, nonce, err := SignAuthorization(testKey(t), cfg, p)
	if err != nil {
		t.Fatalf("sign authorization: %v", err)
	}

	ext, err := json.Marshal(map[string]any{
		"version":        ExtensionVersion,
		"router":         p.Router.Hex(),
		"hook":           p.Hook.Hex(),
		"hookData":       "0x" + hex.EncodeToString(p.HookData),
		"payTo":          p.PayTo.Hex(),
		"salt":           "0x" + hex.EncodeToString(p.Salt[:]),
		"facilitatorFee": p.FacilitatorFee.String(),
	})
	if err != nil {
		t.Fatalf("marshal extension: %v", err)
	}

	return &types.SettleRequest{
		X402Version: types.X402Version,
		PaymentPayload: types.PaymentPayload{
			X402Version: types.X402Version,
			Scheme:      "exact",
			Network:     cfg.Network.String(),
			Payload: &types.ExactEVMPayload{
				Signature: "0x" + hex.EncodeToString(sig),
				Authorization: types.ExactEVMAuthorization{
					From:        p.Payer.Hex(),
					To:          p.Router.Hex(),
					Value:       p.Value.String(),
					ValidAfter:  p.ValidAfter.String(),
					ValidBefore: p.ValidBefore.String(),
					Nonce:       nonce.Hex(),
				},
			},
			Extensions: map[string]json.RawMessage{
				ExtensionName: ext,
			},
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           cfg.Network.String(),
			MaxAmountRequired: p.Value.String(),
			PayTo:             p.PayTo.Hex(),
			Asset:             testToken.Hex(),
		},
	}
}
