// Package x402router settles x402 payments through an on-chain
// settlement router. It verifies EIP-3009 authorizations whose nonce is
// the settlement commitment, decides gas for router hooks, quotes
// facilitator fees and submits settle transactions on EVM networks.
package x402router

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/x402-router/clients"
	"github.com/vitwit/x402-router/settlement"
	"github.com/vitwit/x402-router/types"
	"github.com/vitwit/x402-router/verification"
)

// Config is the facilitator's static configuration.
type Config struct {
	// Networks the facilitator serves. Empty means DefaultNetworks.
	Networks []types.NetworkConfig

	// AllowedRouters whitelists settlement router contracts per network
	// name. A network absent from the map accepts no router.
	AllowedRouters map[string][]string `validate:"required,min=1"`

	// Gas tunes the gas decision engine. Zero value means defaults.
	Gas settlement.GasConfig

	// Fees tunes fee quoting. Zero value means DefaultFeeSchedule.
	Fees settlement.FeeSchedule

	// Executor tunes the settlement pipeline. Zero value means
	// DefaultExecutorConfig.
	Executor settlement.ExecutorConfig
}

// Facilitator is the top-level entry point. Construct with New, attach
// networks with AddEVMNetwork, then serve Verify, Settle and FeeQuote.
type Facilitator struct {
	opts      options
	registry  *types.NetworkRegistry
	whitelist *settlement.RouterWhitelist

	verifier *verification.VerificationService
	executor *settlement.SettlementExecutor
	fees     *settlement.FeeService

	supported []types.SupportedItem
}

// New builds a Facilitator from the configuration.
func New(cfg Config, opts ...Option) (*Facilitator, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, types.NewError(types.ErrConfigError, "invalid config: %v", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	networks := cfg.Networks
	if len(networks) == 0 {
		networks = types.DefaultNetworks()
	}
	registry, err := types.NewNetworkRegistry(networks)
	if err != nil {
		return nil, err
	}

	whitelist, err := settlement.NewRouterWhitelist(cfg.AllowedRouters)
	if err != nil {
		return nil, err
	}

	gasCfg := cfg.Gas
	if gasCfg.MaxGasLimit == 0 {
		gasCfg = settlement.DefaultGasConfig()
	}
	schedule := cfg.Fees
	if schedule.BaseFee == nil {
		schedule = settlement.DefaultFeeSchedule()
	}
	execCfg := cfg.Executor
	if execCfg.Timeout == 0 {
		execCfg = settlement.DefaultExecutorConfig()
	}
	if o.timeout > 0 {
		execCfg.Timeout = o.timeout
	}

	gas := settlement.NewGasDecisionEngine(gasCfg, o.logger, o.metrics)

	return &Facilitator{
		opts:      o,
		registry:  registry,
		whitelist: whitelist,
		verifier:  verification.NewVerificationService(registry, whitelist, o.logger),
		executor:  settlement.NewSettlementExecutor(registry, whitelist, gas, execCfg, o.logger, o.metrics),
		fees: settlement.NewFeeService(registry, settlement.NewFeeQuoteCache(),
			o.prices, schedule, o.logger, o.metrics),
	}, nil
}

// AddEVMNetwork connects the facilitator to an EVM network. The signer
// key submits settle transactions and pays for gas.
func (f *Facilitator) AddEVMNetwork(network string, rpcURL string, signerPrivHex string) error {
	cfg, err := f.registry.Resolve(network)
	if err != nil {
		return err
	}

	client, err := clients.NewEVMClient(cfg.Network, rpcURL, cfg.ChainID, signerPrivHex)
	if err != nil {
		return fmt.Errorf("create EVM client for %s: %w", network, err)
	}
	if err := f.executor.AddClient(cfg.Network.String(), client); err != nil {
		client.Close()
		return err
	}

	f.supported = append(f.supported, types.SupportedItem{
		X402Version: 1,
		Scheme:      "exact",
		Network:     cfg.Network.String(),
	})
	return nil
}

// Verify checks a payment payload offline: wire shape, router
// whitelist, commitment binding, time window and signature.
func (f *Facilitator) Verify(_ context.Context, req *types.SettleRequest) *types.VerificationResult {
	return f.verifier.Verify(req)
}

// Settle executes a settlement end to end and returns a terminal
// outcome. The outcome is never nil and never panics outward.
func (f *Facilitator) Settle(ctx context.Context, req *types.SettleRequest) *types.SettlementOutcome {
	return f.executor.Settle(ctx, req)
}

// FeeQuote prices facilitator work for a hook on a network. hookData is
// the raw hook call data the client intends to settle with.
func (f *Facilitator) FeeQuote(ctx context.Context, network, hook string, hookData []byte) (*types.FeeQuote, error) {
	return f.fees.Quote(ctx, network, hook, hookData)
}

// Supported lists the (scheme, network) pairs with a connected client.
func (f *Facilitator) Supported() *types.SupportedResponse {
	kinds := make([]types.SupportedItem, len(f.supported))
	copy(kinds, f.supported)
	return &types.SupportedResponse{Kinds: kinds}
}

// Close releases all chain clients.
func (f *Facilitator) Close() {
	f.executor.Close()
}
