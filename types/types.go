package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// X402Version is the protocol version this facilitator speaks.
const X402Version = 1

// PaymentRequirements is the resource server's description of an
// acceptable payment, as delivered in the 402 response.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network of the blockchain to send payment on.
	Network string `json:"network"`

	// Maximum amount required, in atomic units of the asset.
	// Represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// URL of the resource to pay for.
	Resource string `json:"resource,omitempty"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MIME type of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// Address the payment must ultimately be sent to.
	PayTo string `json:"payTo"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Address of the EIP-3009 compliant ERC20 contract.
	Asset string `json:"asset"`

	// Extra carries scheme-specific additional data. The legacy
	// settlement-router encoding lives here.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// ExactEVMAuthorization is the transfer authorization signed by the payer.
type ExactEVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // uint256
	ValidAfter  string `json:"validAfter"`  // unix seconds
	ValidBefore string `json:"validBefore"` // unix seconds
	Nonce       string `json:"nonce"`       // bytes32; equals the settlement commitment
}

// ExactEVMPayload is the exact-scheme payment payload for EVM networks.
type ExactEVMPayload struct {
	Signature     string                `json:"signature"`
	Authorization ExactEVMAuthorization `json:"authorization"`
}

// PaymentPayload is the signed payment submitted by the client.
// Settlement-router parameters attach as a versioned extension.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      string           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *ExactEVMPayload `json:"payload"`

	// Extensions holds named, versioned protocol extensions keyed by
	// extension name. Raw so each extension decodes its own schema.
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// SettleRequest is the facilitator's inbound request envelope, pairing a
// signed payload with the requirements it claims to satisfy.
type SettleRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Validate checks the envelope for structurally required fields.
func (r *SettleRequest) Validate() error {
	if r.X402Version <= 0 {
		return fmt.Errorf("x402Version must be greater than 0")
	}
	if r.PaymentPayload.Payload == nil {
		return fmt.Errorf("paymentPayload.payload is required")
	}
	if r.PaymentPayload.Scheme != "exact" {
		return fmt.Errorf("unsupported scheme: %s", r.PaymentPayload.Scheme)
	}
	if r.PaymentRequirements.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}
	if r.PaymentRequirements.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}
	return nil
}

// SettlementRequest is the internal canonical form produced by the
// parser. It is never partially populated: parsing fails atomically.
type SettlementRequest struct {
	Network        string
	Token          common.Address
	Payer          common.Address
	Value          *big.Int
	ValidAfter     *big.Int
	ValidBefore    *big.Int
	Nonce          common.Hash // must equal the settlement commitment
	Signature      []byte
	Salt           [32]byte
	Router         common.Address
	PayTo          common.Address
	FacilitatorFee *big.Int
	Hook           common.Address
	HookData       []byte
}

// Gas validation method tags.
const (
	GasMethodCodeValidation = "code_validation"
	GasMethodEstimation     = "gas_estimation"
)

// GasDecision is the outcome of hook gas validation. GasLimit is only
// meaningful when Valid is true; InvalidReason only when it is false.
type GasDecision struct {
	Valid         bool   `json:"valid"`
	GasLimit      uint64 `json:"gasLimit,omitempty"`
	Method        string `json:"method"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// TokenInfo identifies the fee token in a quote.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// FeeQuote is a short-lived facilitator-fee quote for a (network, hook,
// hookData) triple. Expiry is evaluated lazily at read time.
type FeeQuote struct {
	Network           string          `json:"network"`
	Hook              string          `json:"hook"`
	HookData          string          `json:"hookData,omitempty"`
	HookAllowed       bool            `json:"hookAllowed"`
	FacilitatorFee    string          `json:"facilitatorFee"`
	FacilitatorFeeUSD decimal.Decimal `json:"facilitatorFeeUSD"`
	Token             TokenInfo       `json:"token"`
	CalculatedAt      time.Time       `json:"calculatedAt"`
	ValiditySeconds   int             `json:"validitySeconds"`
}

// Expired reports whether the quote's validity window has elapsed at now.
func (q *FeeQuote) Expired(now time.Time) bool {
	return now.After(q.CalculatedAt.Add(time.Duration(q.ValiditySeconds) * time.Second))
}

// SettlementOutcome is the terminal record returned to the caller. It is
// never mutated after construction. Transaction is empty when the request
// failed before submission; Payer is populated whenever the authorization
// parsed, even on failure.
type SettlementOutcome struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// VerificationResult is the outcome of authorization verification.
type VerificationResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SupportedItem advertises one (scheme, network) pair the facilitator
// accepts.
type SupportedItem struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists everything the facilitator accepts.
type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}
