package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/x402-router/types"
)

// routerABI is the settlement router's facilitator-facing surface. The
// settle argument order is a wire-format contract with the deployed
// bytecode and must not be reordered.
const routerABI = `[
  {
    "inputs": [
      {"name": "token", "type": "address"},
      {"name": "from", "type": "address"},
      {"name": "value", "type": "uint256"},
      {"name": "validAfter", "type": "uint256"},
      {"name": "validBefore", "type": "uint256"},
      {"name": "nonce", "type": "bytes32"},
      {"name": "signature", "type": "bytes"},
      {"name": "salt", "type": "bytes32"},
      {"name": "payTo", "type": "address"},
      {"name": "facilitatorFee", "type": "uint256"},
      {"name": "hook", "type": "address"},
      {"name": "hookData", "type": "bytes"}
    ],
    "name": "settleWithAuthorization",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"name": "commitment", "type": "bytes32"}],
    "name": "settled",
    "outputs": [{"name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20ABI = `[
  {
    "inputs": [{"name": "account", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

// EVMClient is the ethclient-backed ChainClient. One client per network;
// the embedded signer key is the facilitator's submitting account.
type EVMClient struct {
	network    types.Network
	chainID    *big.Int
	eth        *ethclient.Client
	signer     *ecdsa.PrivateKey
	signerAddr common.Address
	router     abi.ABI
	erc20      abi.ABI
}

var _ ChainClient = (*EVMClient)(nil)

// NewEVMClient dials the RPC endpoint and prepares the contract ABIs.
// signerPrivHex is the facilitator's submission key.
func NewEVMClient(network types.Network, rpcURL string, chainID uint64, signerPrivHex string) (*EVMClient, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum rpc dial: %w", err)
	}

	signer, err := crypto.HexToECDSA(strings.TrimPrefix(signerPrivHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}

	router, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &EVMClient{
		network:    network,
		chainID:    new(big.Int).SetUint64(chainID),
		eth:        eth,
		signer:     signer,
		signerAddr: crypto.PubkeyToAddress(signer.PublicKey),
		router:     router,
		erc20:      erc20,
	}, nil
}

func (c *EVMClient) ChainID() *big.Int             { return new(big.Int).Set(c.chainID) }
func (c *EVMClient) SignerAddress() common.Address { return c.signerAddr }
func (c *EVMClient) Close()                        { c.eth.Close() }

// TokenBalance reads balanceOf(owner) on the ERC-20 token.
func (c *EVMClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := c.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, WrapRPCError("balanceOf", err)
	}
	values, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected return type %T", values[0])
	}
	return bal, nil
}

// SettlementState reads the router's settled(commitment) flag.
func (c *EVMClient) SettlementState(ctx context.Context, router common.Address, commitment common.Hash) (bool, error) {
	data, err := c.router.Pack("settled", [32]byte(commitment))
	if err != nil {
		return false, fmt.Errorf("pack settled: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return false, WrapRPCError("settled", err)
	}
	values, err := c.router.Unpack("settled", out)
	if err != nil {
		return false, fmt.Errorf("unpack settled: %w", err)
	}
	settled, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("settled: unexpected return type %T", values[0])
	}
	return settled, nil
}

// packSettle encodes the settle call in the exact on-chain argument
// order: token, payer, value, validAfter, validBefore, nonce, signature,
// salt, payTo, facilitatorFee, hook, hookData.
func (c *EVMClient) packSettle(req *types.SettlementRequest) ([]byte, error) {
	return c.router.Pack("settleWithAuthorization",
		req.Token,
		req.Payer,
		req.Value,
		req.ValidAfter,
		req.ValidBefore,
		[32]byte(req.Nonce),
		req.Signature,
		req.Salt,
		req.PayTo,
		req.FacilitatorFee,
		req.Hook,
		req.HookData,
	)
}

// EstimateSettlementGas simulates the exact transaction that Submit
// would broadcast: same sender, same router, same calldata.
func (c *EVMClient) EstimateSettlementGas(ctx context.Context, req *types.SettlementRequest) (uint64, error) {
	callData, err := c.packSettle(req)
	if err != nil {
		return 0, fmt.Errorf("pack settle call: %w", err)
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.signerAddr,
		To:   &req.Router,
		Data: callData,
	})
	if err != nil {
		return 0, WrapRPCError("estimateGas", err)
	}
	return gas, nil
}

// SubmitSettlement builds, signs and broadcasts the settle transaction.
// The caller holds the per-signer submission lock while this runs.
func (c *EVMClient) SubmitSettlement(ctx context.Context, req *types.SettlementRequest, gasLimit uint64) (common.Hash, error) {
	callData, err := c.packSettle(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack settle call: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, WrapRPCError("suggestGasPrice", err)
	}

	accountNonce, err := c.eth.PendingNonceAt(ctx, c.signerAddr)
	if err != nil {
		return common.Hash{}, WrapRPCError("pendingNonce", err)
	}

	tx := ethtypes.NewTransaction(accountNonce, req.Router, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.chainID), c.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, WrapRPCError("sendTransaction", err)
	}
	return signed.Hash(), nil
}

// TransactionReceipt returns the receipt once mined. While the
// transaction is pending it returns a transient error, so confirmation
// polling composes with the retry layer.
func (c *EVMClient) TransactionReceipt(ctx context.Context, tx common.Hash) (*Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, tx)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, &types.X402Error{Code: types.ErrRPCError, Message: "transaction not yet mined"}
		}
		return nil, WrapRPCError("transactionReceipt", err)
	}
	return &Receipt{
		TxHash:      tx,
		Success:     receipt.Status == ethtypes.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}
