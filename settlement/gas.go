package settlement

import (
	"context"
	"math/big"
	"time"

	"github.com/vitwit/x402-router/clients"
	"github.com/vitwit/x402-router/logger"
	"github.com/vitwit/x402-router/metrics"
	"github.com/vitwit/x402-router/retry"
	"github.com/vitwit/x402-router/types"
)

// GasEstimator is the single simulation capability the gas engine needs.
// *clients.EVMClient satisfies it.
type GasEstimator interface {
	EstimateSettlementGas(ctx context.Context, req *types.SettlementRequest) (uint64, error)
}

// GasConfig bounds hook execution risk.
type GasConfig struct {
	// BaseGas is the router's own cost before hook overhead.
	BaseGas uint64 `json:"baseGas"`

	// MinGasLimit and MaxGasLimit clamp every decided limit.
	MinGasLimit uint64 `json:"minGasLimit"`
	MaxGasLimit uint64 `json:"maxGasLimit"`

	// SafetyFactor is the headroom multiplier applied to live estimates.
	SafetyFactor float64 `json:"safetyFactor"`

	// EstimateTimeout bounds a single simulation round-trip.
	EstimateTimeout time.Duration `json:"estimateTimeout"`

	// CodeValidation enables the static path for built-in hooks. When
	// disabled every hook goes through live simulation.
	CodeValidation bool `json:"codeValidation"`
}

// DefaultGasConfig returns the shipped gas bounds.
func DefaultGasConfig() GasConfig {
	return GasConfig{
		BaseGas:         140_000,
		MinGasLimit:     100_000,
		MaxGasLimit:     500_000,
		SafetyFactor:    1.2,
		EstimateTimeout: 10 * time.Second,
		CodeValidation:  true,
	}
}

// GasDecisionEngine prices and bounds hook execution with a hybrid
// strategy: static code validation for audited built-in hooks (no RPC,
// no exposure to a hook manipulating a live estimate) and bounded live
// simulation for everything else.
type GasDecisionEngine struct {
	cfg      GasConfig
	rpcRetry retry.Config
	log      logger.Logger
	rec      metrics.Recorder
}

// NewGasDecisionEngine builds the engine. Logger and recorder may be nil.
func NewGasDecisionEngine(cfg GasConfig, log logger.Logger, rec metrics.Recorder) *GasDecisionEngine {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &GasDecisionEngine{cfg: cfg, rpcRetry: retry.RPCConfig, log: log, rec: rec}
}

// Decide produces the gas decision for one request. Decisions are not
// cached: hook data varies per request even for the same hook.
func (e *GasDecisionEngine) Decide(
	ctx context.Context,
	cfg *types.NetworkConfig,
	estimator GasEstimator,
	req *types.SettlementRequest,
) types.GasDecision {
	start := time.Now()
	cls := ClassifyHook(cfg, req.Hook)

	var decision types.GasDecision
	if cls.BuiltIn && e.cfg.CodeValidation {
		decision = e.decideStatic(cls, req)
	} else {
		decision = e.decideSimulated(ctx, estimator, req)
	}

	labels := map[string]string{
		metrics.LabelNetwork:  req.Network,
		metrics.LabelHookType: string(cls.Type),
		metrics.LabelOutcome:  outcomeLabel(decision.Valid),
	}
	e.rec.IncCounter(metrics.MetricGasDecision, labels)
	e.rec.ObserveLatency(metrics.MetricGasDecision, time.Since(start), labels)

	if !decision.Valid {
		e.log.Info("gas decision rejected request", map[string]any{
			"network":   req.Network,
			"hook":      req.Hook.Hex(),
			"hook_type": string(cls.Type),
			"method":    decision.Method,
			"reason":    decision.InvalidReason,
		})
	}
	return decision
}

// decideStatic validates a built-in hook's data off-chain and prices it
// with a static per-type overhead.
func (e *GasDecisionEngine) decideStatic(cls HookClassification, req *types.SettlementRequest) types.GasDecision {
	hookAmount := new(big.Int).Sub(req.Value, req.FacilitatorFee)
	if v := ValidateHookData(cls, req.HookData, hookAmount); !v.Valid {
		return types.GasDecision{
			Valid:         false,
			Method:        types.GasMethodCodeValidation,
			InvalidReason: v.Reason,
		}
	}
	return types.GasDecision{
		Valid:    true,
		Method:   types.GasMethodCodeValidation,
		GasLimit: e.clamp(e.cfg.BaseGas + cls.GasOverhead),
	}
}

// decideSimulated runs the chain's gas estimation against the exact
// transaction that would be submitted, with timeout, retry on transient
// RPC failures, safety headroom and clamping.
func (e *GasDecisionEngine) decideSimulated(ctx context.Context, estimator GasEstimator, req *types.SettlementRequest) types.GasDecision {
	estCtx, cancel := context.WithTimeout(ctx, e.cfg.EstimateTimeout)
	defer cancel()

	estimate, err := retry.Do(estCtx, e.rpcRetry, types.IsTransient,
		func(ctx context.Context) (uint64, error) {
			return estimator.EstimateSettlementGas(ctx, req)
		})
	if err != nil {
		cls := clients.ClassifyRevert(err)
		return types.GasDecision{
			Valid:         false,
			Method:        types.GasMethodEstimation,
			InvalidReason: cls.Reason,
		}
	}

	withHeadroom := uint64(float64(estimate) * e.cfg.SafetyFactor)
	return types.GasDecision{
		Valid:    true,
		Method:   types.GasMethodEstimation,
		GasLimit: e.clamp(withHeadroom),
	}
}

func (e *GasDecisionEngine) clamp(gas uint64) uint64 {
	if gas < e.cfg.MinGasLimit {
		return e.cfg.MinGasLimit
	}
	if gas > e.cfg.MaxGasLimit {
		return e.cfg.MaxGasLimit
	}
	return gas
}

func outcomeLabel(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
