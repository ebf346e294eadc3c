package settlement

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-router/logger"
	"github.com/vitwit/x402-router/metrics"
	"github.com/vitwit/x402-router/types"
	"github.com/vitwit/x402-router/utils"
)

// PriceSource supplies the fee token's display-currency price. Live
// price fetching is an external collaborator; the engine only consumes
// this seam.
type PriceSource interface {
	TokenPriceUSD(ctx context.Context, network string, token string) (decimal.Decimal, error)
}

// StaticPriceSource is a fixed-price PriceSource, keyed by token symbol.
// Useful for stablecoin-denominated deployments and tests.
type StaticPriceSource map[string]decimal.Decimal

func (s StaticPriceSource) TokenPriceUSD(_ context.Context, _ string, symbol string) (decimal.Decimal, error) {
	if p, ok := s[symbol]; ok {
		return p, nil
	}
	return decimal.NewFromInt(1), nil
}

// FeeSchedule prices facilitator work per hook type, in atomic units of
// the network's default asset.
type FeeSchedule struct {
	BaseFee         *big.Int              `json:"baseFee"`
	HookPremium     map[HookType]*big.Int `json:"hookPremium"`
	ValiditySeconds int                   `json:"validitySeconds"`
}

// DefaultFeeSchedule returns the shipped schedule: a flat base fee plus
// a small premium for the heavier split hook, quotes valid for 60s.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		BaseFee: big.NewInt(10_000), // 0.01 USDC at 6 decimals
		HookPremium: map[HookType]*big.Int{
			HookTypeSplit:  big.NewInt(5_000),
			HookTypeCustom: big.NewInt(20_000),
		},
		ValiditySeconds: 60,
	}
}

// FeeService issues facilitator-fee quotes, serving repeats from the
// injected cache.
type FeeService struct {
	registry *types.NetworkRegistry
	cache    *FeeQuoteCache
	prices   PriceSource
	schedule FeeSchedule
	log      logger.Logger
	rec      metrics.Recorder
	now      func() time.Time
}

// NewFeeService wires the quote path. cache must be non-nil; prices may
// be nil, defaulting to a 1:1 stablecoin price.
func NewFeeService(
	registry *types.NetworkRegistry,
	cache *FeeQuoteCache,
	prices PriceSource,
	schedule FeeSchedule,
	log logger.Logger,
	rec metrics.Recorder,
) *FeeService {
	if prices == nil {
		prices = StaticPriceSource{}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &FeeService{
		registry: registry,
		cache:    cache,
		prices:   prices,
		schedule: schedule,
		log:      log,
		rec:      rec,
		now:      time.Now,
	}
}

// Quote returns the facilitator fee for executing the given hook with
// the given data on the network. Cached quotes are returned until their
// validity window elapses.
func (s *FeeService) Quote(ctx context.Context, network string, hookAddr string, hookData []byte) (*types.FeeQuote, error) {
	cfg, err := s.registry.Resolve(network)
	if err != nil {
		return nil, err
	}
	hook, err := utils.ParseAddress(hookAddr)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidPayload, "hook: %v", err)
	}

	if quote, ok := s.cache.Get(cfg.Network.String(), hook.Hex(), hookData); ok {
		s.rec.IncCounter(metrics.MetricFeeQuote, map[string]string{
			metrics.LabelNetwork: cfg.Network.String(),
			metrics.LabelOutcome: "cache_hit",
		})
		return quote, nil
	}

	cls := ClassifyHook(cfg, hook)

	fee := new(big.Int).Set(s.schedule.BaseFee)
	if premium, ok := s.schedule.HookPremium[cls.Type]; ok {
		fee.Add(fee, premium)
	}

	price, err := s.prices.TokenPriceUSD(ctx, cfg.Network.String(), cfg.DefaultAsset.Symbol)
	if err != nil {
		// The quote amount is still exact; only the display conversion
		// degrades. Do not fail the quote for a price-feed hiccup.
		s.log.Warn("fee price lookup failed, using 1:1", map[string]any{
			"network": cfg.Network.String(),
			"error":   err.Error(),
		})
		price = decimal.NewFromInt(1)
	}
	feeUSD := utils.AtomicToDecimal(fee, cfg.DefaultAsset.Decimals).Mul(price)

	quote := &types.FeeQuote{
		Network:           cfg.Network.String(),
		Hook:              hook.Hex(),
		HookData:          "0x" + hex.EncodeToString(hookData),
		HookAllowed:       cls.BuiltIn,
		FacilitatorFee:    fee.String(),
		FacilitatorFeeUSD: feeUSD,
		Token: types.TokenInfo{
			Address:  cfg.DefaultAsset.Address,
			Symbol:   cfg.DefaultAsset.Symbol,
			Decimals: cfg.DefaultAsset.Decimals,
		},
		CalculatedAt:    s.now(),
		ValiditySeconds: s.schedule.ValiditySeconds,
	}
	s.cache.Put(quote)

	s.rec.IncCounter(metrics.MetricFeeQuote, map[string]string{
		metrics.LabelNetwork:  cfg.Network.String(),
		metrics.LabelHookType: string(cls.Type),
		metrics.LabelOutcome:  "computed",
	})
	return quote, nil
}
