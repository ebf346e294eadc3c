package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-router/clients"
	"github.com/vitwit/x402-router/logger"
	"github.com/vitwit/x402-router/metrics"
	"github.com/vitwit/x402-router/retry"
	"github.com/vitwit/x402-router/types"
)

// ExecutorConfig tunes the settlement pipeline.
type ExecutorConfig struct {
	// Timeout bounds one settlement end to end.
	Timeout time.Duration

	// StrictBalanceCheck fails the settlement when the balance pre-check
	// itself errors, instead of proceeding. Default is to proceed: a
	// flaky balance read must not block a settlement that would succeed.
	StrictBalanceCheck bool

	// RPCRetry and ConfirmRetry are the per-call-class retry policies.
	RPCRetry     retry.Config
	ConfirmRetry retry.Config
}

// DefaultExecutorConfig returns the shipped pipeline tuning.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:      3 * time.Minute,
		RPCRetry:     retry.RPCConfig,
		ConfirmRetry: retry.ConfirmConfig,
	}
}

// submitLocks serializes transaction submission per (network, signer)
// pair. Concurrent submissions from one signing key race on the account
// nonce; unrelated networks and signers stay unthrottled.
type submitLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubmitLocks() *submitLocks {
	return &submitLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *submitLocks) forSigner(network string, signer common.Address) *sync.Mutex {
	key := strings.ToLower(network) + "|" + strings.ToLower(signer.Hex())
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// SettlementExecutor orchestrates parse, whitelist, balance pre-check,
// gas decision, serialized submission, receipt wait and outcome
// classification. One instance serves all configured networks.
type SettlementExecutor struct {
	registry  *types.NetworkRegistry
	whitelist *RouterWhitelist
	parser    *Parser
	gas       *GasDecisionEngine
	cfg       ExecutorConfig

	mu      sync.RWMutex
	clients map[string]clients.ChainClient

	locks *submitLocks
	log   logger.Logger
	rec   metrics.Recorder
	now   func() time.Time
}

// NewSettlementExecutor wires the pipeline. Logger and recorder may be
// nil.
func NewSettlementExecutor(
	registry *types.NetworkRegistry,
	whitelist *RouterWhitelist,
	gas *GasDecisionEngine,
	cfg ExecutorConfig,
	log logger.Logger,
	rec metrics.Recorder,
) *SettlementExecutor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &SettlementExecutor{
		registry:  registry,
		whitelist: whitelist,
		parser:    NewParser(registry),
		gas:       gas,
		cfg:       cfg,
		clients:   make(map[string]clients.ChainClient),
		locks:     newSubmitLocks(),
		log:       log,
		rec:       rec,
		now:       time.Now,
	}
}

// AddClient registers the chain client for a network.
func (x *SettlementExecutor) AddClient(network string, client clients.ChainClient) error {
	cfg, err := x.registry.Resolve(network)
	if err != nil {
		return err
	}
	x.mu.Lock()
	x.clients[cfg.Network.String()] = client
	x.mu.Unlock()
	return nil
}

func (x *SettlementExecutor) client(network string) (clients.ChainClient, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.clients[network]
	return c, ok
}

// Close closes every registered client.
func (x *SettlementExecutor) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, c := range x.clients {
		c.Close()
	}
	x.clients = make(map[string]clients.ChainClient)
}

// Settle runs the full pipeline for one request and always returns a
// well-formed terminal outcome; it never panics outward. Once the
// authorization has parsed, the payer address is populated on every
// outcome, success or failure.
func (x *SettlementExecutor) Settle(ctx context.Context, req *types.SettleRequest) (outcome *types.SettlementOutcome) {
	start := time.Now()
	network := ""
	if req != nil {
		network = req.PaymentPayload.Network
	}

	defer func() {
		if r := recover(); r != nil {
			x.log.Error("settlement panicked", map[string]any{
				"network": network,
				"panic":   fmt.Sprint(r),
			})
			outcome = &types.SettlementOutcome{
				Success:     false,
				Network:     network,
				ErrorReason: types.OutcomeUnexpectedSettleError,
			}
		}
		x.rec.IncCounter(metrics.MetricSettlement, map[string]string{
			metrics.LabelNetwork: outcome.Network,
			metrics.LabelOutcome: settleOutcomeLabel(outcome),
		})
		x.rec.ObserveLatency(metrics.MetricSettlement, time.Since(start), map[string]string{
			metrics.LabelNetwork: outcome.Network,
		})
	}()

	if x.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.cfg.Timeout)
		defer cancel()
	}

	// Parse. Failures before this point carry no payer.
	parsed, netCfg, err := x.parser.Parse(req)
	if err != nil {
		return &types.SettlementOutcome{
			Success:     false,
			Network:     network,
			ErrorReason: types.OutcomeInvalidPaymentRequirements,
		}
	}
	network = parsed.Network

	fail := func(reason string) *types.SettlementOutcome {
		return &types.SettlementOutcome{
			Success:     false,
			Network:     network,
			Payer:       parsed.Payer.Hex(),
			ErrorReason: reason,
		}
	}

	// Whitelist. Runs before signature work or any RPC so an untrusted
	// router cannot grief or fingerprint the facilitator.
	if err := x.whitelist.Validate(network, parsed.Router); err != nil {
		x.log.Warn("router rejected by whitelist", map[string]any{
			"network": network,
			"router":  parsed.Router.Hex(),
			"error":   err.Error(),
		})
		return fail(types.OutcomeInvalidPaymentRequirements)
	}

	client, ok := x.client(network)
	if !ok {
		x.log.Error("no chain client configured", map[string]any{"network": network})
		return fail(types.OutcomeInvalidPaymentRequirements)
	}

	// Verify the authorization against the re-derived commitment before
	// spending any gas.
	if err := VerifyAuthorization(netCfg, parsed, x.now()); err != nil {
		x.log.Info("authorization verification failed", map[string]any{
			"network": network,
			"payer":   parsed.Payer.Hex(),
			"error":   err.Error(),
		})
		return fail(types.OutcomeInvalidPaymentRequirements)
	}

	// Balance pre-check: fail fast on obviously doomed settlements, but
	// never let a flaky read block one that might succeed.
	if reason, fatal := x.checkBalance(ctx, client, parsed); fatal {
		return fail(reason)
	}

	// Already-settled pre-check, best effort.
	commitment := parsed.Nonce
	if settled, err := client.SettlementState(ctx, parsed.Router, commitment); err == nil && settled {
		return fail(types.OutcomeInvalidTransactionState)
	}

	// Gas decision.
	decision := x.gas.Decide(ctx, netCfg, client, parsed)
	if !decision.Valid {
		return fail(types.OutcomeInvalidSettlementGas)
	}

	// Submit under the per-signer lock: build, sign and broadcast must
	// finish before the next settlement for this signer may start.
	txHash, err := x.submit(ctx, client, parsed, decision.GasLimit)
	if err != nil {
		x.log.Error("settlement submission failed", map[string]any{
			"network": network,
			"payer":   parsed.Payer.Hex(),
			"error":   err.Error(),
		})
		return fail(types.OutcomeUnexpectedSettleError)
	}

	// Confirm outside the lock; the receipt wait consumes no nonce slot.
	return x.confirm(ctx, client, parsed, txHash)
}

// checkBalance reads the payer's token balance and compares it with
// value+fee. Returns (reason, true) only for a definitive shortfall, or
// for a read failure under StrictBalanceCheck.
func (x *SettlementExecutor) checkBalance(ctx context.Context, client clients.ChainClient, req *types.SettlementRequest) (string, bool) {
	balance, err := retry.Do(ctx, x.cfg.RPCRetry, types.IsTransient,
		func(ctx context.Context) (*big.Int, error) {
			return client.TokenBalance(ctx, req.Token, req.Payer)
		})
	if err != nil {
		if x.cfg.StrictBalanceCheck {
			x.log.Error("balance pre-check failed in strict mode", map[string]any{
				"network": req.Network,
				"payer":   req.Payer.Hex(),
				"error":   err.Error(),
			})
			return types.OutcomeUnexpectedSettleError, true
		}
		x.log.Warn("balance pre-check errored, proceeding", map[string]any{
			"network": req.Network,
			"payer":   req.Payer.Hex(),
			"error":   err.Error(),
		})
		return "", false
	}

	required := new(big.Int).Add(req.Value, req.FacilitatorFee)
	if balance.Cmp(required) < 0 {
		x.log.Info("insufficient payer balance", map[string]any{
			"network":  req.Network,
			"payer":    req.Payer.Hex(),
			"balance":  balance.String(),
			"required": required.String(),
		})
		return types.OutcomeInsufficientBalance, true
	}
	return "", false
}

// submit broadcasts the settle transaction while holding the
// (network, signer) lock.
func (x *SettlementExecutor) submit(ctx context.Context, client clients.ChainClient, req *types.SettlementRequest, gasLimit uint64) (common.Hash, error) {
	lock := x.locks.forSigner(req.Network, client.SignerAddress())
	lock.Lock()
	defer lock.Unlock()

	return retry.Do(ctx, x.cfg.RPCRetry, types.IsTransient,
		func(ctx context.Context) (common.Hash, error) {
			return client.SubmitSettlement(ctx, req, gasLimit)
		})
}

// confirm polls for the receipt. A submitted transaction is irreversible
// on-chain: cancellation or timeout here only stops the wait, and the
// outcome still reports the transaction hash.
func (x *SettlementExecutor) confirm(ctx context.Context, client clients.ChainClient, req *types.SettlementRequest, txHash common.Hash) *types.SettlementOutcome {
	receipt, err := retry.Do(ctx, x.cfg.ConfirmRetry, types.IsTransient,
		func(ctx context.Context) (*clients.Receipt, error) {
			return client.TransactionReceipt(ctx, txHash)
		})
	if err != nil {
		x.log.Warn("receipt wait ended without confirmation", map[string]any{
			"network": req.Network,
			"tx":      txHash.Hex(),
			"error":   err.Error(),
		})
		return &types.SettlementOutcome{
			Success:     false,
			Transaction: txHash.Hex(),
			Network:     req.Network,
			Payer:       req.Payer.Hex(),
			ErrorReason: types.OutcomeConfirmationTimedOut,
		}
	}

	if !receipt.Success {
		return &types.SettlementOutcome{
			Success:     false,
			Transaction: txHash.Hex(),
			Network:     req.Network,
			Payer:       req.Payer.Hex(),
			ErrorReason: types.OutcomeInvalidTransactionState,
		}
	}

	x.log.Info("settlement confirmed", map[string]any{
		"network": req.Network,
		"payer":   req.Payer.Hex(),
		"tx":      txHash.Hex(),
		"block":   receipt.BlockNumber,
		"gasUsed": receipt.GasUsed,
	})
	return &types.SettlementOutcome{
		Success:     true,
		Transaction: txHash.Hex(),
		Network:     req.Network,
		Payer:       req.Payer.Hex(),
	}
}

func settleOutcomeLabel(o *types.SettlementOutcome) string {
	if o.Success {
		return "success"
	}
	return o.ErrorReason
}
