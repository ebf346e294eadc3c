// Package verification checks signed settlement authorizations without
// touching the chain. It parses the wire request, enforces the router
// whitelist and verifies the EIP-3009 signature against the re-derived
// settlement commitment.
package verification

import (
	"time"

	"github.com/vitwit/x402-router/logger"
	"github.com/vitwit/x402-router/settlement"
	"github.com/vitwit/x402-router/types"
)

// VerificationService answers verify requests. It shares the parser and
// whitelist with the settlement pipeline so both surfaces accept and
// reject the same payloads.
type VerificationService struct {
	parser    *settlement.Parser
	whitelist *settlement.RouterWhitelist
	log       logger.Logger
	now       func() time.Time
}

// NewVerificationService builds a service over the shared registry and
// whitelist. Logger may be nil.
func NewVerificationService(registry *types.NetworkRegistry, whitelist *settlement.RouterWhitelist, log logger.Logger) *VerificationService {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &VerificationService{
		parser:    settlement.NewParser(registry),
		whitelist: whitelist,
		log:       log,
		now:       time.Now,
	}
}

// Verify checks the payment payload offline. A false result always
// carries the reason; the payer is populated once the payload parses.
func (s *VerificationService) Verify(req *types.SettleRequest) *types.VerificationResult {
	parsed, cfg, err := s.parser.Parse(req)
	if err != nil {
		return &types.VerificationResult{
			IsValid:       false,
			InvalidReason: types.ErrorCode(err),
		}
	}

	result := &types.VerificationResult{Payer: parsed.Payer.Hex()}

	if err := s.whitelist.Validate(parsed.Network, parsed.Router); err != nil {
		result.InvalidReason = types.ErrorCode(err)
		return result
	}

	if err := settlement.VerifyAuthorization(cfg, parsed, s.now()); err != nil {
		s.log.Debug("authorization rejected", map[string]any{
			"network": parsed.Network,
			"payer":   parsed.Payer.Hex(),
			"error":   err.Error(),
		})
		result.InvalidReason = types.ErrorCode(err)
		return result
	}

	result.IsValid = true
	return result
}
