package settlement

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/vitwit/x402-router/types"
	"github.com/vitwit/x402-router/utils"
)

// ExtensionName is the versioned envelope the settlement-router
// parameters travel in on the payment payload.
const ExtensionName = "settlement-router"

// ExtensionVersion is the envelope schema version this parser accepts.
const ExtensionVersion = 1

// settlementExtension is the wire schema shared by both encodings: the
// versioned extension envelope and the legacy requirements.extra map.
type settlementExtension struct {
	Version        int    `json:"version"`
	Router         string `json:"router" validate:"required"`
	Hook           string `json:"hook" validate:"required"`
	HookData       string `json:"hookData" validate:"required"`
	PayTo          string `json:"payTo" validate:"required"`
	Salt           string `json:"salt" validate:"required"`
	FacilitatorFee string `json:"facilitatorFee"`
}

// Parser normalizes the two wire encodings of settlement parameters into
// one internal SettlementRequest.
type Parser struct {
	registry *types.NetworkRegistry
	validate *validator.Validate
}

// NewParser builds a parser bound to the network registry.
func NewParser(registry *types.NetworkRegistry) *Parser {
	return &Parser{
		registry: registry,
		validate: validator.New(),
	}
}

// Parse converts an inbound settle request into the canonical form. The
// extension envelope is read first; the legacy extra map is consulted
// only when the envelope is entirely absent. A present-but-malformed
// envelope is a hard failure, never a fallback: an attacker must not be
// able to smuggle a valid-looking legacy block past a broken envelope.
// Parsing is atomic; no partially populated request is ever returned.
func (p *Parser) Parse(req *types.SettleRequest) (*types.SettlementRequest, *types.NetworkConfig, error) {
	if req == nil {
		return nil, nil, types.NewError(types.ErrInvalidPayload, "settle request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, nil, types.NewError(types.ErrInvalidPayload, "invalid settle request: %v", err)
	}

	cfg, err := p.registry.Resolve(req.PaymentPayload.Network)
	if err != nil {
		return nil, nil, err
	}
	reqCfg, err := p.registry.Resolve(req.PaymentRequirements.Network)
	if err != nil {
		return nil, nil, err
	}
	if cfg != reqCfg {
		return nil, nil, types.NewError(types.ErrInvalidPayload,
			"payload network %s does not match requirements network %s",
			req.PaymentPayload.Network, req.PaymentRequirements.Network)
	}

	ext, err := p.extractExtension(req)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := p.buildRequest(cfg, req, ext)
	if err != nil {
		return nil, nil, err
	}
	return parsed, cfg, nil
}

// extractExtension locates the settlement parameters in one of the two
// supported encodings.
func (p *Parser) extractExtension(req *types.SettleRequest) (*settlementExtension, error) {
	if raw, ok := req.PaymentPayload.Extensions[ExtensionName]; ok {
		var ext settlementExtension
		if err := json.Unmarshal(raw, &ext); err != nil {
			return nil, types.NewError(types.ErrSettlementExtra,
				"malformed %s extension: %v", ExtensionName, err)
		}
		if ext.Version != ExtensionVersion {
			return nil, types.NewError(types.ErrSettlementExtra,
				"unsupported %s extension version %d", ExtensionName, ext.Version)
		}
		if err := p.validate.Struct(&ext); err != nil {
			return nil, types.NewError(types.ErrSettlementExtra,
				"incomplete %s extension: %v", ExtensionName, err)
		}
		return &ext, nil
	}

	return p.legacyExtension(req.PaymentRequirements.Extra)
}

// legacyExtension reads the pre-envelope encoding from the requirements'
// generic extra map.
func (p *Parser) legacyExtension(extra map[string]interface{}) (*settlementExtension, error) {
	if len(extra) == 0 {
		return nil, types.NewError(types.ErrSettlementExtra,
			"missing settlement parameters: no %s extension and empty requirements extra", ExtensionName)
	}

	str := func(key string) string {
		if v, ok := extra[key].(string); ok {
			return v
		}
		return ""
	}

	ext := &settlementExtension{
		Version:        ExtensionVersion,
		Router:         str("router"),
		Hook:           str("hook"),
		HookData:       str("hookData"),
		PayTo:          str("payTo"),
		Salt:           str("salt"),
		FacilitatorFee: str("facilitatorFee"),
	}
	if err := p.validate.Struct(ext); err != nil {
		return nil, types.NewError(types.ErrSettlementExtra,
			"incomplete legacy settlement extra: %v", err)
	}
	return ext, nil
}

// buildRequest assembles and fully validates the canonical request.
func (p *Parser) buildRequest(
	cfg *types.NetworkConfig,
	req *types.SettleRequest,
	ext *settlementExtension,
) (*types.SettlementRequest, error) {
	fail := func(field string, err error) error {
		return types.NewError(types.ErrSettlementExtra, "%s: %v", field, err)
	}

	auth := req.PaymentPayload.Payload.Authorization

	token, err := utils.ParseAddress(req.PaymentRequirements.Asset)
	if err != nil {
		return nil, fail("asset", err)
	}
	payer, err := utils.ParseAddress(auth.From)
	if err != nil {
		return nil, fail("authorization.from", err)
	}
	router, err := utils.ParseAddress(ext.Router)
	if err != nil {
		return nil, fail("router", err)
	}
	hook, err := utils.ParseAddress(ext.Hook)
	if err != nil {
		return nil, fail("hook", err)
	}
	payTo, err := utils.ParseAddress(ext.PayTo)
	if err != nil {
		return nil, fail("payTo", err)
	}

	value, err := utils.ParseBigInt(auth.Value)
	if err != nil {
		return nil, fail("authorization.value", err)
	}
	validAfter, err := utils.ParseBigInt(auth.ValidAfter)
	if err != nil {
		return nil, fail("authorization.validAfter", err)
	}
	validBefore, err := utils.ParseBigInt(auth.ValidBefore)
	if err != nil {
		return nil, fail("authorization.validBefore", err)
	}
	if validBefore.Cmp(validAfter) <= 0 {
		return nil, fail("authorization", fmt.Errorf("validBefore must be greater than validAfter"))
	}

	// Fee is optional in both encodings and defaults to zero.
	fee := big.NewInt(0)
	if ext.FacilitatorFee != "" {
		fee, err = utils.ParseBigInt(ext.FacilitatorFee)
		if err != nil {
			return nil, fail("facilitatorFee", err)
		}
	}

	nonceBytes, err := utils.DecodeHex(auth.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return nil, fail("authorization.nonce", fmt.Errorf("must be 32 bytes of hex"))
	}

	sig, err := utils.DecodeSignature(req.PaymentPayload.Payload.Signature)
	if err != nil {
		return nil, fail("signature", err)
	}

	salt, err := utils.DecodeSalt(ext.Salt)
	if err != nil {
		return nil, fail("salt", err)
	}

	hookData, err := utils.DecodeHex(ext.HookData)
	if err != nil {
		return nil, fail("hookData", err)
	}

	return &types.SettlementRequest{
		Network:        cfg.Network.String(),
		Token:          token,
		Payer:          payer,
		Value:          value,
		ValidAfter:     validAfter,
		ValidBefore:    validBefore,
		Nonce:          common.BytesToHash(nonceBytes),
		Signature:      sig,
		Salt:           salt,
		Router:         router,
		PayTo:          payTo,
		FacilitatorFee: fee,
		Hook:           hook,
		HookData:       hookData,
	}, nil
}
