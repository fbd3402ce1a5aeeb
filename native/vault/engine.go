package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"swapvault/native/fees"
	"swapvault/observability/metrics"
	"swapvault/state"
)

// Exchange is the external venue the orchestrator trades through. Swap must
// fail when it cannot guarantee at least minAmountOut back.
type Exchange interface {
	Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error)
	Swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*big.Int, error)
}

// Transferrer moves value in and out of custody on deposit, withdrawal, and
// emergency sweeps. Any failure aborts the whole operation.
type Transferrer interface {
	TransferIn(ctx context.Context, from, asset common.Address, amount *big.Int) error
	TransferOut(ctx context.Context, to, asset common.Address, amount *big.Int) error
}

// Authorizer resolves administrator rights for already-verified callers.
type Authorizer interface {
	IsAdministrator(caller common.Address) bool
}

// DefaultSwapTimeout bounds the external exchange round-trip.
const DefaultSwapTimeout = 10 * time.Second

// Engine owns the ledger, policy store, trade clock, and fee configuration.
// It is the only component allowed to mutate them, and it serialises the
// read-validate-mutate sequence per user so no two operations on the same
// user interleave.
type Engine struct {
	state    *state.Manager
	exchange Exchange
	transfer Transferrer
	auth     Authorizer

	clock       func() time.Time
	swapTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.VaultMetrics

	// userMu guards the lock table; sharedMu serialises writers of the
	// process-wide fee config, pause flag, and deposit accumulators.
	userMu   sync.Mutex
	locks    map[common.Address]*sync.Mutex
	sharedMu sync.Mutex
}

// NewEngine constructs an engine over the supplied state manager and
// collaborators. A nil authorizer means no caller has admin rights.
func NewEngine(manager *state.Manager, exchange Exchange, transfer Transferrer, auth Authorizer) *Engine {
	return &Engine{
		state:       manager,
		exchange:    exchange,
		transfer:    transfer,
		auth:        auth,
		clock:       time.Now,
		swapTimeout: DefaultSwapTimeout,
		logger:      slog.Default(),
		metrics:     metrics.Vault(),
		locks:       make(map[common.Address]*sync.Mutex),
	}
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetSwapTimeout bounds the exchange quote/swap round-trip.
func (e *Engine) SetSwapTimeout(timeout time.Duration) {
	if e == nil || timeout <= 0 {
		return
	}
	e.swapTimeout = timeout
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) lockUser(user common.Address) func() {
	e.userMu.Lock()
	mu, ok := e.locks[user]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[user] = mu
	}
	e.userMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// lockTradeScope locks the trading user and, when a protocol fee will be
// charged, the fee recipient as well. The recipient balance is shared state
// every fee-charging trade writes, so it needs the same serialization as the
// user's own balance. Locks are taken in address order so two trades can
// never deadlock on each other.
func (e *Engine) lockTradeScope(user common.Address, feeConfig FeeConfig) func() {
	if feeConfig.FeeBps == 0 || feeConfig.Recipient == (common.Address{}) || feeConfig.Recipient == user {
		return e.lockUser(user)
	}
	first, second := user, feeConfig.Recipient
	if bytes.Compare(second.Bytes(), first.Bytes()) < 0 {
		first, second = second, first
	}
	unlockFirst := e.lockUser(first)
	unlockSecond := e.lockUser(second)
	return func() {
		unlockSecond()
		unlockFirst()
	}
}

func (e *Engine) isAdmin(caller common.Address) bool {
	return e.auth != nil && e.auth.IsAdministrator(caller)
}

// --- Ledger operations ---

// Deposit credits amount of asset into the caller's custodial balance after
// pulling the funds through the transfer collaborator.
func (e *Engine) Deposit(ctx context.Context, caller, user, asset common.Address, amount *big.Int) error {
	if caller != user {
		return ErrUnauthorizedCaller
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	unlock := e.lockUser(user)
	defer unlock()

	if e.transfer != nil {
		if err := e.transfer.TransferIn(ctx, user, asset, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransfer, err)
		}
	}

	e.sharedMu.Lock()
	defer e.sharedMu.Unlock()
	txn := e.state.Begin()
	ledger := NewLedger(txn)
	if err := ledger.Credit(user, asset, amount); err != nil {
		return err
	}
	if err := ledger.AddTotalDeposits(asset, amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.metrics.ObserveDeposit(asset.Hex())
	return nil
}

// Withdraw debits amount from the caller's balance and pays it out through
// the transfer collaborator. Both legs commit together or not at all.
func (e *Engine) Withdraw(ctx context.Context, caller, user, asset common.Address, amount *big.Int) error {
	if caller != user {
		return ErrUnauthorizedCaller
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	unlock := e.lockUser(user)
	defer unlock()
	return e.payOut(ctx, user, asset, user, amount)
}

// WithdrawAll sweeps the caller's full balance of asset and returns the
// amount withdrawn. An already-empty balance returns zero, not an error.
func (e *Engine) WithdrawAll(ctx context.Context, caller, user, asset common.Address) (*big.Int, error) {
	if caller != user {
		return nil, ErrUnauthorizedCaller
	}
	unlock := e.lockUser(user)
	defer unlock()

	balance, err := NewLedger(e.state).Balance(user, asset)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Set(balance)
	if err := e.payOut(ctx, user, asset, user, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// payOut debits (user, asset) and transfers the funds to recipient. Callers
// must hold the user lock.
func (e *Engine) payOut(ctx context.Context, user, asset, recipient common.Address, amount *big.Int) error {
	txn := e.state.Begin()
	ledger := NewLedger(txn)
	if err := ledger.Debit(user, asset, amount); err != nil {
		return err
	}
	if e.transfer != nil {
		if err := e.transfer.TransferOut(ctx, recipient, asset, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransfer, err)
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.metrics.ObserveWithdrawal(asset.Hex())
	return nil
}

// Balance returns the custodial balance for (user, asset).
func (e *Engine) Balance(user, asset common.Address) (*big.Int, error) {
	return NewLedger(e.state).Balance(user, asset)
}

// Balances returns balances for several assets at once, in order.
func (e *Engine) Balances(user common.Address, assets []common.Address) ([]*big.Int, error) {
	return NewLedger(e.state).Balances(user, assets)
}

// TotalDeposited returns the running sum of all deposits for an asset.
func (e *Engine) TotalDeposited(asset common.Address) (*big.Int, error) {
	return NewLedger(e.state).TotalDeposited(asset)
}

// --- Policy operations ---

// SetPolicy overwrites the user's policy in full. Only the policy owner or
// an administrator may call it.
func (e *Engine) SetPolicy(caller, user common.Address, policy Policy) error {
	if caller != user && !e.isAdmin(caller) {
		return ErrUnauthorizedCaller
	}
	unlock := e.lockUser(user)
	defer unlock()
	txn := e.state.Begin()
	if err := NewPolicyStore(txn).Put(user, policy); err != nil {
		return err
	}
	return txn.Commit()
}

// SetSimplePolicy sets only the slippage and size limits, with the system
// default cooldown and an empty allowlist.
func (e *Engine) SetSimplePolicy(caller, user common.Address, maxSlippageBps uint32, maxTradeSize *big.Int) error {
	return e.SetPolicy(caller, user, Policy{
		MaxSlippageBps:  maxSlippageBps,
		MaxTradeSize:    maxTradeSize,
		CooldownSeconds: DefaultCooldownSeconds,
	})
}

// InitializeDefaultPolicy persists the default policy if the user has none.
// It is idempotent and never overwrites an existing policy.
func (e *Engine) InitializeDefaultPolicy(user common.Address) error {
	unlock := e.lockUser(user)
	defer unlock()
	txn := e.state.Begin()
	wrote, err := NewPolicyStore(txn).InitializeDefault(user)
	if err != nil {
		return err
	}
	if !wrote {
		return nil
	}
	return txn.Commit()
}

// GetPolicy returns the user's policy, falling back to the defaults when the
// user never set one. The read never writes; call InitializeDefaultPolicy to
// persist the defaults.
func (e *Engine) GetPolicy(user common.Address) (Policy, error) {
	policy, ok, err := NewPolicyStore(e.state).Get(user)
	if err != nil {
		return Policy{}, err
	}
	if !ok {
		return DefaultPolicy(), nil
	}
	return policy.Copy(), nil
}

// --- Fee configuration and pause switch ---

type pauseRecord struct {
	Paused bool
}

type feeConfigRecord struct {
	Recipient common.Address
	FeeBps    uint32
}

// SeedFeeConfig writes an initial fee configuration straight to the store.
// Bootstrap only; runtime changes go through the admin setters.
func SeedFeeConfig(manager *state.Manager, cfg FeeConfig) error {
	return manager.KVPut(feeConfigKey, feeConfigRecord{
		Recipient: cfg.Recipient,
		FeeBps:    fees.ClampBps(cfg.FeeBps),
	})
}

// FeeConfig returns the current protocol fee configuration.
func (e *Engine) FeeConfig() (FeeConfig, error) {
	var record feeConfigRecord
	if _, err := e.state.KVGet(feeConfigKey, &record); err != nil {
		return FeeConfig{}, err
	}
	return FeeConfig{Recipient: record.Recipient, FeeBps: record.FeeBps}, nil
}

// SetProtocolFee updates the fee rate. Requests above the cap are clamped,
// not rejected. Admin only.
func (e *Engine) SetProtocolFee(caller common.Address, bps uint32) error {
	if !e.isAdmin(caller) {
		return ErrUnauthorizedCaller
	}
	e.sharedMu.Lock()
	defer e.sharedMu.Unlock()
	var record feeConfigRecord
	if _, err := e.state.KVGet(feeConfigKey, &record); err != nil {
		return err
	}
	record.FeeBps = fees.ClampBps(bps)
	return e.state.KVPut(feeConfigKey, record)
}

// SetFeeRecipient updates the fee payout address. Admin only; the recipient
// must be non-zero.
func (e *Engine) SetFeeRecipient(caller, recipient common.Address) error {
	if !e.isAdmin(caller) {
		return ErrUnauthorizedCaller
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	e.sharedMu.Lock()
	defer e.sharedMu.Unlock()
	var record feeConfigRecord
	if _, err := e.state.KVGet(feeConfigKey, &record); err != nil {
		return err
	}
	record.Recipient = recipient
	return e.state.KVPut(feeConfigKey, record)
}

// SetPaused toggles the trading pause switch. Deposits and withdrawals stay
// available so users can always exit. Admin only.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	if !e.isAdmin(caller) {
		return ErrUnauthorizedCaller
	}
	e.sharedMu.Lock()
	defer e.sharedMu.Unlock()
	return e.state.KVPut(pauseKey, pauseRecord{Paused: paused})
}

// Paused reports whether trading is currently suspended.
func (e *Engine) Paused() (bool, error) {
	var record pauseRecord
	if _, err := e.state.KVGet(pauseKey, &record); err != nil {
		return false, err
	}
	return record.Paused, nil
}

// EmergencyWithdraw sweeps a user's balance of asset to an arbitrary
// recipient, bypassing per-user custody. Stuck-funds recovery only; admin
// only. Returns the amount swept.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller, user, asset, recipient common.Address) (*big.Int, error) {
	if !e.isAdmin(caller) {
		return nil, ErrUnauthorizedCaller
	}
	if recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}
	unlock := e.lockUser(user)
	defer unlock()

	balance, err := NewLedger(e.state).Balance(user, asset)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Set(balance)
	if err := e.payOut(ctx, user, asset, recipient, amount); err != nil {
		return nil, err
	}
	e.logger.Warn("emergency withdrawal executed",
		slog.String("user", user.Hex()),
		slog.String("asset", asset.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", amount.String()))
	return amount, nil
}

// --- Trade orchestration ---

// ExecuteTrade validates the trade against the caller's policy, obtains a
// quote, executes the swap, and settles balances, clock, and fee as one
// atomic unit. Any failure rolls the whole attempt back.
func (e *Engine) ExecuteTrade(ctx context.Context, caller, user, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*TradeReceipt, error) {
	receipt, err := e.executeTrade(ctx, caller, user, assetIn, assetOut, amountIn, minAmountOut)
	if err != nil {
		e.metrics.ObserveTradeRejected(rejectReason(err))
		return nil, err
	}
	e.metrics.ObserveTradeExecuted(assetIn.Hex(), assetOut.Hex(), bigFloat(receipt.AmountIn), bigFloat(receipt.Fee))
	e.logger.Info("trade executed",
		slog.String("user", user.Hex()),
		slog.String("asset_in", assetIn.Hex()),
		slog.String("asset_out", assetOut.Hex()),
		slog.String("amount_in", receipt.AmountIn.String()),
		slog.String("amount_out", receipt.AmountOut.String()),
		slog.String("fee", receipt.Fee.String()),
		slog.String("receipt", receipt.ID))
	return receipt, nil
}

func (e *Engine) executeTrade(ctx context.Context, caller, user, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*TradeReceipt, error) {
	if caller != user {
		return nil, ErrUnauthorizedCaller
	}
	if assetIn == assetOut {
		return nil, ErrInvalidAsset
	}
	paused, err := e.Paused()
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrVaultPaused
	}
	if e.exchange == nil {
		return nil, fmt.Errorf("%w: no exchange configured", ErrExchange)
	}
	feeConfig, err := e.FeeConfig()
	if err != nil {
		return nil, err
	}

	unlock := e.lockTradeScope(user, feeConfig)
	defer unlock()

	txn := e.state.Begin()
	ledger := NewLedger(txn)
	policies := NewPolicyStore(txn)

	policy, ok, err := policies.Get(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		policy = DefaultPolicy()
	}
	lastTrade, err := policies.LastTradeTimestamp(user)
	if err != nil {
		return nil, err
	}
	now := e.clock()

	// Validator checks run in their fixed order. The quote is a pure read,
	// fetched only after the input amounts are validated; it feeds the
	// slippage tolerance derivation.
	if err := CheckTradeSize(amountIn, policy.MaxTradeSize); err != nil {
		return nil, err
	}
	if err := CheckMinAmountOut(minAmountOut); err != nil {
		return nil, err
	}
	quote, err := e.quote(ctx, assetIn, assetOut, amountIn)
	if err != nil {
		return nil, err
	}
	if err := CheckSlippage(impliedSlippageBps(quote, minAmountOut), policy.MaxSlippageBps); err != nil {
		return nil, err
	}
	if err := CheckCooldown(lastTrade, policy.CooldownSeconds, now.Unix()); err != nil {
		return nil, err
	}
	if err := CheckTokenAllowlist(assetIn, policy.TokenAllowlist); err != nil {
		return nil, err
	}
	if err := CheckTokenAllowlist(assetOut, policy.TokenAllowlist); err != nil {
		return nil, err
	}

	balance, err := ledger.Balance(user, assetIn)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amountIn) < 0 {
		return nil, ErrTradeExceedsBalance
	}

	swapCtx, cancel := context.WithTimeout(ctx, e.swapTimeout)
	defer cancel()
	actualOut, err := e.exchange.Swap(swapCtx, assetIn, assetOut, amountIn, minAmountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if actualOut == nil || actualOut.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: settlement below minimum output", ErrExchange)
	}

	split := fees.Apply(actualOut, feeConfig.FeeBps)

	if err := ledger.Debit(user, assetIn, amountIn); err != nil {
		return nil, err
	}
	if err := ledger.Credit(user, assetOut, split.Net); err != nil {
		return nil, err
	}
	if split.Fee.Sign() > 0 {
		if feeConfig.Recipient == (common.Address{}) {
			return nil, ErrZeroRecipient
		}
		if err := ledger.Credit(feeConfig.Recipient, assetOut, split.Fee); err != nil {
			return nil, err
		}
	}
	if err := policies.SetLastTradeTimestamp(user, now.Unix()); err != nil {
		return nil, err
	}

	receipt := &TradeReceipt{
		ID:        uuid.NewString(),
		User:      user,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(actualOut),
		Fee:       split.Fee,
		Timestamp: now.Unix(),
	}
	if err := NewReceiptBook(txn).Put(receipt); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return receipt, nil
}

// SimulateTrade returns the exchange's expected output for the given input
// without touching the ledger, policy store, or clock.
func (e *Engine) SimulateTrade(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if assetIn == assetOut {
		return nil, ErrInvalidAsset
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroTradeAmount
	}
	if e.exchange == nil {
		return nil, fmt.Errorf("%w: no exchange configured", ErrExchange)
	}
	return e.quote(ctx, assetIn, assetOut, amountIn)
}

func (e *Engine) quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, e.swapTimeout)
	defer cancel()
	quote, err := e.exchange.Quote(quoteCtx, assetIn, assetOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if quote == nil || quote.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty quote", ErrExchange)
	}
	return quote, nil
}

// TradeHistory lists the user's most recent receipts, newest first.
func (e *Engine) TradeHistory(user common.Address, limit int) ([]*TradeReceipt, error) {
	return NewReceiptBook(e.state).History(user, limit)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrZeroTradeAmount):
		return "zero_amount"
	case errors.Is(err, ErrZeroMinAmountOut):
		return "zero_min_out"
	case errors.Is(err, ErrTradeSizeExceeded):
		return "trade_size"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, ErrCooldownNotElapsed):
		return "cooldown"
	case errors.Is(err, ErrTokenNotAllowed):
		return "allowlist"
	case errors.Is(err, ErrTradeExceedsBalance):
		return "balance"
	case errors.Is(err, ErrVaultPaused):
		return "paused"
	case errors.Is(err, ErrUnauthorizedCaller):
		return "unauthorized"
	case errors.Is(err, ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, ErrExchange):
		return "exchange"
	default:
		return "unknown"
	}
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
