package settlement

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-router/types"
	"github.com/vitwit/x402-router/utils"
)

// RouterWhitelist is the per-network set of trusted settlement routers.
// It is the sole gate preventing a malicious resource server from
// pointing the facilitator at an untrusted contract, so it runs before
// any gas spend or signature work.
type RouterWhitelist struct {
	allowed map[string][]common.Address
}

// NewRouterWhitelist builds a whitelist from network alias -> allowed
// router addresses. Addresses are validated up front; lookups are
// case-insensitive since hex case carries no meaning.
func NewRouterWhitelist(allowed map[string][]string) (*RouterWhitelist, error) {
	w := &RouterWhitelist{allowed: make(map[string][]common.Address, len(allowed))}
	for network, addrs := range allowed {
		for _, a := range addrs {
			addr, err := utils.ParseAddress(a)
			if err != nil {
				return nil, types.NewError(types.ErrConfigError,
					"allowed router for %s: %v", network, err)
			}
			key := strings.ToLower(network)
			w.allowed[key] = append(w.allowed[key], addr)
		}
	}
	return w, nil
}

// Validate checks router against the network's allowed set. It fails
// closed: a network with no configured routers rejects every address,
// never "allow any". Rejections include the full allowed list so
// operators can diagnose misconfigured resource servers.
func (w *RouterWhitelist) Validate(network string, router common.Address) error {
	allowed := w.allowed[strings.ToLower(network)]
	if len(allowed) == 0 {
		return types.NewError(types.ErrRouterNotAllowed,
			"no routers configured for network %s", network)
	}

	for _, a := range allowed {
		if a == router {
			return nil
		}
	}

	hexes := make([]string, len(allowed))
	for i, a := range allowed {
		hexes[i] = a.Hex()
	}
	return types.NewError(types.ErrRouterNotAllowed,
		"router %s is not allowed on network %s (allowed: %s)",
		router.Hex(), network, strings.Join(hexes, ", "))
}
