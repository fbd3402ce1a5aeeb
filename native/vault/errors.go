package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAmount indicates a deposit or withdrawal of zero (or negative) size.
	ErrZeroAmount = errors.New("vault: amount must be positive")
	// ErrZeroTradeAmount indicates a trade attempt with a zero input amount.
	ErrZeroTradeAmount = errors.New("vault: trade amount must be positive")
	// ErrZeroMinAmountOut indicates a trade attempt with no minimum output floor.
	ErrZeroMinAmountOut = errors.New("vault: minimum amount out must be positive")
	// ErrInvalidAsset indicates a malformed asset pair, such as trading an asset
	// against itself.
	ErrInvalidAsset = errors.New("vault: invalid asset address")
	// ErrZeroRecipient indicates a zero recipient where a real address is required.
	ErrZeroRecipient = errors.New("vault: recipient must be non-zero")
	// ErrUnauthorizedCaller indicates the verified caller may not perform the
	// requested operation on the target user.
	ErrUnauthorizedCaller = errors.New("vault: unauthorized caller")
	// ErrInsufficientVaultBalance indicates a withdrawal larger than the
	// custodial balance.
	ErrInsufficientVaultBalance = errors.New("vault: insufficient balance")
	// ErrTradeExceedsBalance indicates a trade input larger than the custodial
	// balance of the input asset.
	ErrTradeExceedsBalance = errors.New("vault: trade exceeds balance")
	// ErrTradeSizeExceeded indicates a trade larger than the policy limit.
	ErrTradeSizeExceeded = errors.New("vault: trade size exceeds policy limit")
	// ErrSlippageExceeded indicates a slippage tolerance above the policy limit.
	ErrSlippageExceeded = errors.New("vault: slippage exceeds policy limit")
	// ErrTokenNotAllowed indicates an asset absent from a non-empty allowlist.
	ErrTokenNotAllowed = errors.New("vault: token not in allowlist")
	// ErrCooldownNotElapsed indicates the per-user trade cooldown is still running.
	ErrCooldownNotElapsed = errors.New("vault: cooldown not elapsed")
	// ErrVaultPaused indicates trading has been suspended by an administrator.
	ErrVaultPaused = errors.New("vault: trading paused")
	// ErrExchange wraps quote, swap, or settlement failures from the external
	// exchange. Callers should re-simulate and resubmit.
	ErrExchange = errors.New("vault: exchange failure")
	// ErrTransfer wraps asset-transfer collaborator failures.
	ErrTransfer = errors.New("vault: asset transfer failed")
)

// InsufficientBalanceError reports how far a withdrawal or sweep overshot the
// custodial balance.
type InsufficientBalanceError struct {
	Have *big.Int
	Need *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("vault: insufficient balance: have %s, need %s", e.Have, e.Need)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientVaultBalance }

// TradeSizeExceededError reports the offending amount alongside the policy limit.
type TradeSizeExceededError struct {
	Amount *big.Int
	Max    *big.Int
}

func (e *TradeSizeExceededError) Error() string {
	return fmt.Sprintf("vault: trade size %s exceeds limit %s", e.Amount, e.Max)
}

func (e *TradeSizeExceededError) Unwrap() error { return ErrTradeSizeExceeded }

// SlippageExceededError reports the requested tolerance and the limit it broke.
type SlippageExceededError struct {
	RequestedBps uint32
	MaxBps       uint32
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("vault: slippage %d bps exceeds limit %d bps", e.RequestedBps, e.MaxBps)
}

func (e *SlippageExceededError) Unwrap() error { return ErrSlippageExceeded }

// TokenNotAllowedError identifies the asset a policy allowlist rejected.
type TokenNotAllowedError struct {
	Asset common.Address
}

func (e *TokenNotAllowedError) Error() string {
	return fmt.Sprintf("vault: token %s not in allowlist", e.Asset.Hex())
}

func (e *TokenNotAllowedError) Unwrap() error { return ErrTokenNotAllowed }

// CooldownError carries the seconds remaining before the next trade may run.
type CooldownError struct {
	Remaining int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("vault: cooldown active, %d seconds remaining", e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownNotElapsed }
