package types

import (
	"fmt"
	"strings"
)

// Network is the short human alias for a chain (e.g. "base"). The same
// chain is equally addressable by its CAIP-2 identifier ("eip155:8453");
// NetworkRegistry resolves both spellings to the identical config.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy"
)

func (n Network) String() string { return string(n) }

// AssetConfig describes the default fungible asset used for settlement on
// a network, including the EIP-712 signing-domain parameters of its
// transfer-with-authorization implementation.
type AssetConfig struct {
	Address       string `json:"address"`
	Symbol        string `json:"symbol"`
	Decimals      int    `json:"decimals"`
	EIP712Name    string `json:"eip712Name"`
	EIP712Version string `json:"eip712Version"`
}

// NetworkConfig is the immutable per-network configuration. It is loaded
// once at process start and shared read-only afterwards.
type NetworkConfig struct {
	// Network is the short alias, e.g. "base".
	Network Network `json:"network"`

	// ChainID is the numeric EVM chain id.
	ChainID uint64 `json:"chainId"`

	// Router is the deployed settlement-router contract address.
	Router string `json:"router"`

	// DefaultAsset is the asset settlements default to.
	DefaultAsset AssetConfig `json:"defaultAsset"`

	// Hooks maps built-in hook names ("transfer", "split") to their
	// audited contract addresses on this network.
	Hooks map[string]string `json:"hooks"`
}

// CAIP2 returns the canonical chain-namespace identifier for the network.
func (c *NetworkConfig) CAIP2() string {
	return fmt.Sprintf("eip155:%d", c.ChainID)
}

// NetworkRegistry resolves network identifiers (alias or CAIP-2 form) to
// their configuration. Both spellings of the same chain resolve to the
// identical *NetworkConfig.
type NetworkRegistry struct {
	byID map[string]*NetworkConfig
}

// NewNetworkRegistry builds a registry from the given configs. Duplicate
// aliases or chain ids are a configuration error.
func NewNetworkRegistry(configs []NetworkConfig) (*NetworkRegistry, error) {
	byID := make(map[string]*NetworkConfig, len(configs)*2)
	for i := range configs {
		cfg := &configs[i]
		if cfg.Network == "" {
			return nil, NewError(ErrConfigError, "network config %d: missing network alias", i)
		}
		if cfg.ChainID == 0 {
			return nil, NewError(ErrConfigError, "network %s: missing chain id", cfg.Network)
		}
		alias := strings.ToLower(string(cfg.Network))
		canonical := cfg.CAIP2()
		if _, dup := byID[alias]; dup {
			return nil, NewError(ErrConfigError, "duplicate network alias %q", alias)
		}
		if _, dup := byID[canonical]; dup {
			return nil, NewError(ErrConfigError, "duplicate chain id %d", cfg.ChainID)
		}
		byID[alias] = cfg
		byID[canonical] = cfg
	}
	return &NetworkRegistry{byID: byID}, nil
}

// Resolve looks up a network by either its alias or CAIP-2 identifier.
func (r *NetworkRegistry) Resolve(id string) (*NetworkConfig, error) {
	cfg, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, NewError(ErrUnknownNetwork, "unknown network: %s", id)
	}
	return cfg, nil
}

// Networks returns the configured short aliases, one per chain.
func (r *NetworkRegistry) Networks() []Network {
	seen := make(map[*NetworkConfig]bool, len(r.byID))
	var out []Network
	for _, cfg := range r.byID {
		if !seen[cfg] {
			seen[cfg] = true
			out = append(out, cfg.Network)
		}
	}
	return out
}

// Built-in hook names recognized across networks.
const (
	HookNameTransfer = "transfer"
	HookNameSplit    = "split"
)

// DefaultNetworks returns the networks the facilitator ships support for.
// Router and hook addresses are per-deployment and are expected to be
// filled in from configuration.
func DefaultNetworks() []NetworkConfig {
	usdc := func(addr, name, version string) AssetConfig {
		return AssetConfig{Address: addr, Symbol: "USDC", Decimals: 6, EIP712Name: name, EIP712Version: version}
	}
	return []NetworkConfig{
		{
			Network:      NetworkBase,
			ChainID:      8453,
			DefaultAsset: usdc("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "USD Coin", "2"),
		},
		{
			Network:      NetworkBaseSepolia,
			ChainID:      84532,
			DefaultAsset: usdc("0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2"),
		},
		{
			Network:      NetworkPolygon,
			ChainID:      137,
			DefaultAsset: usdc("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", "USD Coin", "2"),
		},
		{
			Network:      NetworkPolygonAmoy,
			ChainID:      80002,
			DefaultAsset: usdc("0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582", "USDC", "2"),
		},
	}
}
