package vault_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapvault/adapters/mock"
	"swapvault/native/vault"
	"swapvault/state"
	"swapvault/storage"
)

var (
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	admin        = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	feeRecipient = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	assetA       = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	assetB       = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

type fixture struct {
	engine   *vault.Engine
	manager  *state.Manager
	exchange *mock.Exchange
	transfer *mock.Transferrer
	now      time.Time
}

// newFixture wires an engine over an in-memory store with a 2:1 exchange
// rate and a frozen clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		manager:  state.NewManager(storage.NewMemDB()),
		exchange: mock.NewExchange(2, 1),
		transfer: mock.NewTransferrer(),
		now:      time.Unix(1_700_000_000, 0),
	}
	f.engine = vault.NewEngine(f.manager, f.exchange, f.transfer, mock.NewAuthorizer(admin))
	f.engine.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) balance(t *testing.T, user, asset common.Address) int64 {
	t.Helper()
	balance, err := f.engine.Balance(user, asset)
	require.NoError(t, err)
	return balance.Int64()
}

func (f *fixture) fund(t *testing.T, user, asset common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.engine.Deposit(context.Background(), user, user, asset, big.NewInt(amount)))
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, alice, assetA, 1_000)
	require.EqualValues(t, 1_000, f.balance(t, alice, assetA))

	total, err := f.engine.TotalDeposited(assetA)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, total.Int64())

	require.NoError(t, f.engine.Withdraw(ctx, alice, alice, assetA, big.NewInt(400)))
	require.EqualValues(t, 600, f.balance(t, alice, assetA))

	// Withdrawals never reduce the deposit accumulator.
	total, err = f.engine.TotalDeposited(assetA)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, total.Int64())

	// Both transfer legs were recorded.
	require.Len(t, f.transfer.Movements, 2)
	require.True(t, f.transfer.Movements[0].Inbound)
	require.False(t, f.transfer.Movements[1].Inbound)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Deposit(ctx, bob, alice, assetA, big.NewInt(100))
	require.ErrorIs(t, err, vault.ErrUnauthorizedCaller)

	err = f.engine.Deposit(ctx, alice, alice, assetA, big.NewInt(0))
	require.ErrorIs(t, err, vault.ErrZeroAmount)

	err = f.engine.Deposit(ctx, alice, alice, assetA, big.NewInt(-5))
	require.ErrorIs(t, err, vault.ErrZeroAmount)
}

func TestDepositAbortsWhenTransferFails(t *testing.T) {
	f := newFixture(t)
	f.transfer.InErr = errors.New("custody offline")

	err := f.engine.Deposit(context.Background(), alice, alice, assetA, big.NewInt(100))
	require.ErrorIs(t, err, vault.ErrTransfer)
	require.EqualValues(t, 0, f.balance(t, alice, assetA))
}

func TestWithdrawChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 100)

	err := f.engine.Withdraw(ctx, alice, alice, assetA, big.NewInt(101))
	require.ErrorIs(t, err, vault.ErrInsufficientVaultBalance)
	require.EqualValues(t, 100, f.balance(t, alice, assetA))

	err = f.engine.Withdraw(ctx, bob, alice, assetA, big.NewInt(10))
	require.ErrorIs(t, err, vault.ErrUnauthorizedCaller)
}

func TestWithdrawAbortsWhenTransferFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 100)
	f.transfer.OutErr = errors.New("custody offline")

	err := f.engine.Withdraw(context.Background(), alice, alice, assetA, big.NewInt(60))
	require.ErrorIs(t, err, vault.ErrTransfer)
	require.EqualValues(t, 100, f.balance(t, alice, assetA))
}

func TestWithdrawAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Empty balance sweeps to zero without error.
	amount, err := f.engine.WithdrawAll(ctx, alice, alice, assetA)
	require.NoError(t, err)
	require.EqualValues(t, 0, amount.Int64())

	f.fund(t, alice, assetA, 750)
	amount, err = f.engine.WithdrawAll(ctx, alice, alice, assetA)
	require.NoError(t, err)
	require.EqualValues(t, 750, amount.Int64())
	require.EqualValues(t, 0, f.balance(t, alice, assetA))
}

func TestExecuteTradeHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.SetFeeRecipient(admin, feeRecipient))
	require.NoError(t, f.engine.SetProtocolFee(admin, 30))

	f.fund(t, alice, assetA, 1_000)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps: 300,
		MaxTradeSize:   big.NewInt(10_000),
	}))

	// Rate 2:1 quotes 2000 out; a floor of 1940 implies exactly 300 bps.
	receipt, err := f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(1_000), big.NewInt(1_940))
	require.NoError(t, err)

	require.EqualValues(t, 1_000, receipt.AmountIn.Int64())
	require.EqualValues(t, 2_000, receipt.AmountOut.Int64())
	require.EqualValues(t, 6, receipt.Fee.Int64()) // 2000 * 30 / 10000
	require.Equal(t, f.now.Unix(), receipt.Timestamp)
	require.NotEmpty(t, receipt.ID)

	require.EqualValues(t, 0, f.balance(t, alice, assetA))
	require.EqualValues(t, 1_994, f.balance(t, alice, assetB))
	require.EqualValues(t, 6, f.balance(t, feeRecipient, assetB))

	history, err := f.engine.TradeHistory(alice, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, receipt.ID, history[0].ID)
}

func TestExecuteTradeWithoutFeeConfig(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 1_000)

	// No fee configured: the user keeps the full settlement.
	receipt, err := f.engine.ExecuteTrade(context.Background(), alice, alice, assetA, assetB, big.NewInt(500), big.NewInt(1_000))
	require.NoError(t, err)
	require.EqualValues(t, 0, receipt.Fee.Int64())
	require.EqualValues(t, 1_000, f.balance(t, alice, assetB))
}

func TestExecuteTradeRejectsExcessSlippage(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 1_000)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps: 300,
		MaxTradeSize:   big.NewInt(10_000),
	}))

	// Quote is 2000; a floor of 1900 implies 500 bps against a 300 bps limit.
	_, err := f.engine.ExecuteTrade(context.Background(), alice, alice, assetA, assetB, big.NewInt(1_000), big.NewInt(1_900))
	var slipErr *vault.SlippageExceededError
	require.ErrorAs(t, err, &slipErr)
	require.EqualValues(t, 500, slipErr.RequestedBps)
	require.EqualValues(t, 300, slipErr.MaxBps)
	require.EqualValues(t, 1_000, f.balance(t, alice, assetA))
}

func TestExecuteTradeCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 1_000)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps:  300,
		MaxTradeSize:    big.NewInt(10_000),
		CooldownSeconds: 60,
	}))

	_, err := f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)

	f.advance(30 * time.Second)
	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	var cdErr *vault.CooldownError
	require.ErrorAs(t, err, &cdErr)
	require.EqualValues(t, 30, cdErr.Remaining)

	f.advance(30 * time.Second)
	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)
}

func TestExecuteTradeAllowlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 1_000)
	f.fund(t, alice, vault.NativeAsset, 1_000)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps: 300,
		MaxTradeSize:   big.NewInt(10_000),
		TokenAllowlist: []common.Address{assetB},
	}))

	// assetA is not on the allowlist.
	_, err := f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	var listErr *vault.TokenNotAllowedError
	require.ErrorAs(t, err, &listErr)
	require.Equal(t, assetA, listErr.Asset)

	// The native asset bypasses the allowlist.
	_, err = f.engine.ExecuteTrade(ctx, alice, alice, vault.NativeAsset, assetB, big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)
}

func TestExecuteTradeChecksSizeBeforeBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 100)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps: 300,
		MaxTradeSize:   big.NewInt(500),
	}))

	// 1000 violates both the size limit and the balance; the size error wins.
	_, err := f.engine.ExecuteTrade(context.Background(), alice, alice, assetA, assetB, big.NewInt(1_000), big.NewInt(2_000))
	require.ErrorIs(t, err, vault.ErrTradeSizeExceeded)
	require.NotErrorIs(t, err, vault.ErrTradeExceedsBalance)
}

func TestExecuteTradeRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 100)

	_, err := f.engine.ExecuteTrade(context.Background(), alice, alice, assetA, assetB, big.NewInt(200), big.NewInt(400))
	require.ErrorIs(t, err, vault.ErrTradeExceedsBalance)
	require.EqualValues(t, 100, f.balance(t, alice, assetA))
}

func TestExecuteTradeRollsBackOnExchangeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 1_000)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps:  300,
		MaxTradeSize:    big.NewInt(10_000),
		CooldownSeconds: 60,
	}))

	f.exchange.SwapErr = errors.New("venue offline")
	_, err := f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(500), big.NewInt(1_000))
	require.ErrorIs(t, err, vault.ErrExchange)

	// Nothing moved, the clock did not advance, no receipt was written.
	require.EqualValues(t, 1_000, f.balance(t, alice, assetA))
	require.EqualValues(t, 0, f.balance(t, alice, assetB))
	history, histErr := f.engine.TradeHistory(alice, 10)
	require.NoError(t, histErr)
	require.Empty(t, history)

	// A failed attempt must not start the cooldown; the retry succeeds
	// without advancing the clock.
	f.exchange.SwapErr = nil
	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(500), big.NewInt(1_000))
	require.NoError(t, err)
}

func TestExecuteTradeRejectsShortSettlement(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, assetA, 1_000)

	// The venue settles below the floor it was given.
	f.exchange.SwapOut = big.NewInt(900)
	_, err := f.engine.ExecuteTrade(context.Background(), alice, alice, assetA, assetB, big.NewInt(500), big.NewInt(1_000))
	require.ErrorIs(t, err, vault.ErrExchange)
	require.EqualValues(t, 1_000, f.balance(t, alice, assetA))
}

func TestExecuteTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 1_000)

	_, err := f.engine.ExecuteTrade(ctx, bob, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	require.ErrorIs(t, err, vault.ErrUnauthorizedCaller)

	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetA, big.NewInt(100), big.NewInt(200))
	require.ErrorIs(t, err, vault.ErrInvalidAsset)

	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(0), big.NewInt(200))
	require.ErrorIs(t, err, vault.ErrZeroTradeAmount)

	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(0))
	require.ErrorIs(t, err, vault.ErrZeroMinAmountOut)
}

func TestPauseBlocksTradingOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 1_000)

	require.ErrorIs(t, f.engine.SetPaused(alice, true), vault.ErrUnauthorizedCaller)
	require.NoError(t, f.engine.SetPaused(admin, true))

	_, err := f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	require.ErrorIs(t, err, vault.ErrVaultPaused)

	// Users can always exit while trading is suspended.
	require.NoError(t, f.engine.Deposit(ctx, alice, alice, assetA, big.NewInt(50)))
	require.NoError(t, f.engine.Withdraw(ctx, alice, alice, assetA, big.NewInt(50)))

	require.NoError(t, f.engine.SetPaused(admin, false))
	_, err = f.engine.ExecuteTrade(ctx, alice, alice, assetA, assetB, big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)
}

func TestPolicyAuthorization(t *testing.T) {
	f := newFixture(t)
	policy := vault.Policy{MaxSlippageBps: 100, MaxTradeSize: big.NewInt(1_000)}

	require.ErrorIs(t, f.engine.SetPolicy(bob, alice, policy), vault.ErrUnauthorizedCaller)
	require.NoError(t, f.engine.SetPolicy(alice, alice, policy))
	require.NoError(t, f.engine.SetPolicy(admin, alice, policy))
}

func TestGetPolicyFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)

	policy, err := f.engine.GetPolicy(alice)
	require.NoError(t, err)
	require.EqualValues(t, vault.DefaultMaxSlippageBps, policy.MaxSlippageBps)
	require.EqualValues(t, vault.DefaultCooldownSeconds, policy.CooldownSeconds)
	require.Zero(t, policy.MaxTradeSize.Cmp(vault.DefaultMaxTradeSize))

	require.NoError(t, f.engine.InitializeDefaultPolicy(alice))
	require.NoError(t, f.engine.SetSimplePolicy(alice, alice, 150, big.NewInt(2_000)))

	policy, err = f.engine.GetPolicy(alice)
	require.NoError(t, err)
	require.EqualValues(t, 150, policy.MaxSlippageBps)
	require.EqualValues(t, vault.DefaultCooldownSeconds, policy.CooldownSeconds)
}

func TestProtocolFeeAdministration(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.engine.SetProtocolFee(alice, 30), vault.ErrUnauthorizedCaller)
	require.ErrorIs(t, f.engine.SetFeeRecipient(alice, feeRecipient), vault.ErrUnauthorizedCaller)
	require.ErrorIs(t, f.engine.SetFeeRecipient(admin, common.Address{}), vault.ErrZeroRecipient)

	// Rates above the cap clamp rather than fail.
	require.NoError(t, f.engine.SetProtocolFee(admin, 500))
	cfg, err := f.engine.FeeConfig()
	require.NoError(t, err)
	require.EqualValues(t, vault.MaxProtocolFeeBps, cfg.FeeBps)

	require.NoError(t, f.engine.SetFeeRecipient(admin, feeRecipient))
	cfg, err = f.engine.FeeConfig()
	require.NoError(t, err)
	require.Equal(t, feeRecipient, cfg.Recipient)
	require.EqualValues(t, vault.MaxProtocolFeeBps, cfg.FeeBps)
}

func TestSimulateTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quote, err := f.engine.SimulateTrade(ctx, assetA, assetB, big.NewInt(500))
	require.NoError(t, err)
	require.EqualValues(t, 1_000, quote.Int64())

	// Simulation touches nothing.
	require.EqualValues(t, 0, f.balance(t, alice, assetA))

	_, err = f.engine.SimulateTrade(ctx, assetA, assetA, big.NewInt(500))
	require.ErrorIs(t, err, vault.ErrInvalidAsset)
	_, err = f.engine.SimulateTrade(ctx, assetA, assetB, big.NewInt(0))
	require.ErrorIs(t, err, vault.ErrZeroTradeAmount)
}

func TestConcurrentTradesConserveFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1:1 rate keeps the arithmetic exact: each 100-unit trade settles 100
	// out, of which 1 unit (100 bps) is the protocol fee.
	f.exchange.RateNum = big.NewInt(1)
	require.NoError(t, f.engine.SetFeeRecipient(admin, feeRecipient))
	require.NoError(t, f.engine.SetProtocolFee(admin, 100))

	const (
		userCount      = 8
		tradesPerUser  = 25
		amountPerTrade = 100
	)

	users := make([]common.Address, userCount)
	for i := range users {
		users[i] = common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
		f.fund(t, users[i], assetA, tradesPerUser*amountPerTrade)
		require.NoError(t, f.engine.SetPolicy(users[i], users[i], vault.Policy{
			MaxSlippageBps: 300,
			MaxTradeSize:   big.NewInt(10_000),
		}))
	}

	// Every trade credits the shared fee recipient; run them from all users
	// at once so concurrent settlements hit that balance together.
	var wg sync.WaitGroup
	errs := make(chan error, userCount*tradesPerUser)
	for _, user := range users {
		wg.Add(1)
		go func(user common.Address) {
			defer wg.Done()
			for i := 0; i < tradesPerUser; i++ {
				_, err := f.engine.ExecuteTrade(ctx, user, user, assetA, assetB,
					big.NewInt(amountPerTrade), big.NewInt(amountPerTrade))
				if err != nil {
					errs <- err
				}
			}
		}(user)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("trade failed: %v", err)
	}

	// Conservation: every fee unit charged must be present in the
	// recipient's balance, and every net unit in its owner's.
	require.EqualValues(t, userCount*tradesPerUser, f.balance(t, feeRecipient, assetB))
	for _, user := range users {
		require.EqualValues(t, tradesPerUser*(amountPerTrade-1), f.balance(t, user, assetB))
		require.EqualValues(t, 0, f.balance(t, user, assetA))
	}
}

func TestGetPolicyReturnsACopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetPolicy(alice, alice, vault.Policy{
		MaxSlippageBps: 200,
		MaxTradeSize:   big.NewInt(5_000),
		TokenAllowlist: []common.Address{assetA},
	}))

	policy, err := f.engine.GetPolicy(alice)
	require.NoError(t, err)

	// Mutating the returned policy must not reach the stored one.
	policy.MaxTradeSize.SetInt64(1)
	policy.TokenAllowlist[0] = assetB

	again, err := f.engine.GetPolicy(alice)
	require.NoError(t, err)
	require.EqualValues(t, 5_000, again.MaxTradeSize.Int64())
	require.Equal(t, assetA, again.TokenAllowlist[0])
}

func TestEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, alice, assetA, 900)

	_, err := f.engine.EmergencyWithdraw(ctx, alice, alice, assetA, bob)
	require.ErrorIs(t, err, vault.ErrUnauthorizedCaller)

	_, err = f.engine.EmergencyWithdraw(ctx, admin, alice, assetA, common.Address{})
	require.ErrorIs(t, err, vault.ErrZeroRecipient)

	amount, err := f.engine.EmergencyWithdraw(ctx, admin, alice, assetA, bob)
	require.NoError(t, err)
	require.EqualValues(t, 900, amount.Int64())
	require.EqualValues(t, 0, f.balance(t, alice, assetA))

	last := f.transfer.Movements[len(f.transfer.Movements)-1]
	require.Equal(t, bob, last.Account)
	require.False(t, last.Inbound)
}
