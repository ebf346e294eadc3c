// Package clients provides the chain-facing capability layer of the
// facilitator: an explicit interface with exactly the calls the
// settlement engine needs, and an ethclient-backed implementation.
package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-router/types"
)

// Receipt is the minimal confirmation result the engine consumes.
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
}

// ChainClient is the capability interface the settlement executor
// depends on. Any object implementing it is accepted; the core is
// decoupled from a specific chain library.
type ChainClient interface {
	// ChainID returns the numeric chain id the client is connected to.
	ChainID() *big.Int

	// SignerAddress is the facilitator's submitting account.
	SignerAddress() common.Address

	// TokenBalance reads owner's balance of the ERC-20 token.
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// SettlementState reads whether the router has already settled the
	// given commitment.
	SettlementState(ctx context.Context, router common.Address, commitment common.Hash) (bool, error)

	// EstimateSettlementGas simulates the exact settle transaction that
	// would be submitted and returns the node's gas estimate.
	EstimateSettlementGas(ctx context.Context, req *types.SettlementRequest) (uint64, error)

	// SubmitSettlement builds, signs and broadcasts the settle
	// transaction with the decided gas limit, returning its hash.
	SubmitSettlement(ctx context.Context, req *types.SettlementRequest, gasLimit uint64) (common.Hash, error)

	// TransactionReceipt returns the receipt for a submitted
	// transaction, or an error while it is still pending.
	TransactionReceipt(ctx context.Context, tx common.Hash) (*Receipt, error)

	// Close releases the underlying connection.
	Close()
}
