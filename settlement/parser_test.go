package settlement

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/vitwit/x402-router/types"
)

// toLegacy rewrites a request to carry its settlement parameters in the
// requirements' extra map instead of the extension envelope.
func toLegacy(req *types.SettleRequest, p *CommitmentParams) {
	req.PaymentPayload.Extensions = nil
	req.PaymentRequirements.Extra = map[string]interface{}{
		"router":         p.Router.Hex(),
		"hook":           p.Hook.Hex(),
		"hookData":       "0x" + hex.EncodeToString(p.HookData),
		"payTo":          p.PayTo.Hex(),
		"salt":           "0x" + hex.EncodeToString(p.Salt[:]),
		"facilitatorFee": p.FacilitatorFee.String(),
	}
}

func TestParseExtensionEnvelope(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	parsed, gotCfg, err := parser.Parse(signedRequest(t, &cfg, p))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if gotCfg.ChainID != cfg.ChainID {
		t.Fatalf("wrong network config: chain id %d", gotCfg.ChainID)
	}
	if parsed.Router != p.Router {
		t.Errorf("router = %s, want %s", parsed.Router.Hex(), p.Router.Hex())
	}
	if parsed.Payer != p.Payer {
		t.Errorf("payer = %s, want %s", parsed.Payer.Hex(), p.Payer.Hex())
	}
	if parsed.Value.Cmp(p.Value) != 0 {
		t.Errorf("value = %s, want %s", parsed.Value, p.Value)
	}
	if parsed.FacilitatorFee.Cmp(p.FacilitatorFee) != 0 {
		t.Errorf("fee = %s, want %s", parsed.FacilitatorFee, p.FacilitatorFee)
	}
	if parsed.Salt != p.Salt {
		t.Error("salt not preserved")
	}
	if parsed.Nonce != ComputeCommitment(p) {
		t.Error("nonce does not round-trip to the commitment")
	}
	if len(parsed.HookData) != 0 {
		t.Errorf("hook data = %x, want empty", parsed.HookData)
	}
}

func TestParseLegacyExtra(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	req := signedRequest(t, &cfg, p)
	toLegacy(req, p)

	parsed, _, err := parser.Parse(req)
	if err != nil {
		t.Fatalf("legacy parse failed: %v", err)
	}
	if parsed.Router != p.Router {
		t.Errorf("router = %s, want %s", parsed.Router.Hex(), p.Router.Hex())
	}
	if parsed.FacilitatorFee.Cmp(p.FacilitatorFee) != 0 {
		t.Errorf("fee = %s, want %s", parsed.FacilitatorFee, p.FacilitatorFee)
	}
}

func TestParseEnvelopePrecedence(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	// Both encodings present with conflicting routers: the envelope wins
	// and the legacy block is never consulted.
	req := signedRequest(t, &cfg, p)
	req.PaymentRequirements.Extra = map[string]interface{}{
		"router":   testCustomHook.Hex(),
		"hook":     p.Hook.Hex(),
		"hookData": "0x",
		"payTo":    p.PayTo.Hex(),
		"salt":     "0x" + hex.EncodeToString(p.Salt[:]),
	}

	parsed, _, err := parser.Parse(req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Router != p.Router {
		t.Fatalf("legacy router leaked through: %s", parsed.Router.Hex())
	}
}

func TestParseMalformedEnvelopeIsHardFailure(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	// A broken envelope must never fall back to a valid legacy block.
	req := signedRequest(t, &cfg, p)
	req.PaymentPayload.Extensions[ExtensionName] = json.RawMessage(`{"version":`)
	toLegacyExtra := signedRequest(t, &cfg, p)
	toLegacy(toLegacyExtra, p)
	req.PaymentRequirements.Extra = toLegacyExtra.PaymentRequirements.Extra

	if _, _, err := parser.Parse(req); err == nil {
		t.Fatal("malformed envelope fell back to legacy extra")
	}
}

func TestParseEnvelopeRejections(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))

	mutate := func(fn func(*types.SettleRequest, *CommitmentParams)) *types.SettleRequest {
		p := testParams(t)
		req := signedRequest(t, &cfg, p)
		fn(req, p)
		return req
	}

	cases := map[string]*types.SettleRequest{
		"unsupported envelope version": mutate(func(r *types.SettleRequest, p *CommitmentParams) {
			r.PaymentPayload.Extensions[ExtensionName] = json.RawMessage(
				`{"version":2,"router":"` + p.Router.Hex() + `","hook":"` + p.Hook.Hex() +
					`","hookData":"0x","payTo":"` + p.PayTo.Hex() + `","salt":"0x` +
					hex.EncodeToString(p.Salt[:]) + `"}`)
		}),
		"missing router": mutate(func(r *types.SettleRequest, p *CommitmentParams) {
			r.PaymentPayload.Extensions[ExtensionName] = json.RawMessage(
				`{"version":1,"hook":"` + p.Hook.Hex() + `","hookData":"0x","payTo":"` +
					p.PayTo.Hex() + `","salt":"0x` + hex.EncodeToString(p.Salt[:]) + `"}`)
		}),
		"no settlement parameters at all": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Extensions = nil
		}),
		"network mismatch": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentRequirements.Network = "eip155:1"
		}),
		"unknown network": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Network = "avalanche"
		}),
		"wrong scheme": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Scheme = "upto"
		}),
		"short nonce": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Payload.Authorization.Nonce = "0x1234"
		}),
		"negative value": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Payload.Authorization.Value = "-5"
		}),
		"inverted validity window": mutate(func(r *types.SettleRequest, p *CommitmentParams) {
			r.PaymentPayload.Payload.Authorization.ValidBefore = p.ValidAfter.String()
		}),
		"truncated signature": mutate(func(r *types.SettleRequest, _ *CommitmentParams) {
			r.PaymentPayload.Payload.Signature = "0x1234"
		}),
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := parser.Parse(req); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}

	t.Run("nil request", func(t *testing.T) {
		if _, _, err := parser.Parse(nil); err == nil {
			t.Fatal("nil request accepted")
		}
	})
}

func TestParseFeeDefaultsToZero(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	req := signedRequest(t, &cfg, p)
	req.PaymentPayload.Extensions[ExtensionName] = json.RawMessage(
		`{"version":1,"router":"` + p.Router.Hex() + `","hook":"` + p.Hook.Hex() +
			`","hookData":"0x","payTo":"` + p.PayTo.Hex() + `","salt":"0x` +
			hex.EncodeToString(p.Salt[:]) + `"}`)

	parsed, _, err := parser.Parse(req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.FacilitatorFee.Cmp(big.NewInt(0)) != 0 {
		t.Fatalf("fee = %s, want 0", parsed.FacilitatorFee)
	}
}

func TestParseResolvesCAIP2Identifier(t *testing.T) {
	cfg := testNetworkConfig()
	parser := NewParser(testRegistry(t))
	p := testParams(t)

	req := signedRequest(t, &cfg, p)
	req.PaymentPayload.Network = "eip155:84532"
	req.PaymentRequirements.Network = "base-sepolia"

	parsed, gotCfg, err := parser.Parse(req)
	if err != nil {
		t.Fatalf("CAIP-2 identifier rejected: %v", err)
	}
	if gotCfg.ChainID != 84532 {
		t.Fatalf("resolved wrong chain: %d", gotCfg.ChainID)
	}
	// The canonical request uses the short alias regardless of spelling.
	if parsed.Network != "base-sepolia" {
		t.Fatalf("network normalized to %q", parsed.Network)
	}
}
