package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The validator functions below are pure: they inspect a proposed trade
// against policy data and the clock, and never touch state. ExecuteTrade
// runs them in this exact order; the first failure aborts the attempt.

// CheckTradeSize rejects zero-sized trades and trades above the policy limit.
func CheckTradeSize(amount, maxTradeSize *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTradeAmount
	}
	if maxTradeSize != nil && maxTradeSize.Sign() > 0 && amount.Cmp(maxTradeSize) > 0 {
		return &TradeSizeExceededError{
			Amount: new(big.Int).Set(amount),
			Max:    new(big.Int).Set(maxTradeSize),
		}
	}
	return nil
}

// CheckMinAmountOut rejects trades with no output floor; without one the
// exchange could settle at any price.
func CheckMinAmountOut(minAmountOut *big.Int) error {
	if minAmountOut == nil || minAmountOut.Sign() <= 0 {
		return ErrZeroMinAmountOut
	}
	return nil
}

// CheckSlippage rejects tolerances beyond 100% outright, then tolerances
// beyond the policy limit.
func CheckSlippage(requestedBps, maxBps uint32) error {
	if requestedBps > MaxSlippageBps {
		return &SlippageExceededError{RequestedBps: requestedBps, MaxBps: MaxSlippageBps}
	}
	if requestedBps > maxBps {
		return &SlippageExceededError{RequestedBps: requestedBps, MaxBps: maxBps}
	}
	return nil
}

// CheckCooldown enforces the minimum spacing between trades. A zero cooldown
// always passes, as does a zero clock: the user has never traded, so there is
// nothing to space against.
func CheckCooldown(lastTradeTimestamp int64, cooldownSeconds uint64, now int64) error {
	if cooldownSeconds == 0 || lastTradeTimestamp == 0 {
		return nil
	}
	eligibleAt := lastTradeTimestamp + int64(cooldownSeconds)
	if now < eligibleAt {
		return &CooldownError{Remaining: eligibleAt - now}
	}
	return nil
}

// CheckTokenAllowlist passes unconditionally for an empty allowlist and for
// the native asset; otherwise the asset must be listed.
func CheckTokenAllowlist(asset common.Address, allowlist []common.Address) error {
	if len(allowlist) == 0 {
		return nil
	}
	if asset == NativeAsset {
		return nil
	}
	for _, entry := range allowlist {
		if entry == asset {
			return nil
		}
	}
	return &TokenNotAllowedError{Asset: asset}
}

// CalculateMinAmountOut converts a slippage tolerance into an output floor:
// floor(expectedAmountOut * (10000 - slippageBps) / 10000). At 0 bps this is
// the expected amount exactly; at 10000 bps it is zero.
func CalculateMinAmountOut(expectedAmountOut *big.Int, slippageBps uint32) *big.Int {
	if expectedAmountOut == nil || expectedAmountOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippageBps > MaxSlippageBps {
		slippageBps = MaxSlippageBps
	}
	out := new(big.Int).Mul(expectedAmountOut, big.NewInt(int64(MaxSlippageBps-slippageBps)))
	return out.Div(out, big.NewInt(MaxSlippageBps))
}

// impliedSlippageBps derives the tolerance a caller requested from their
// output floor versus the pre-trade quote. A floor at or above the quote
// implies zero tolerance.
func impliedSlippageBps(quote, minAmountOut *big.Int) uint32 {
	if quote == nil || quote.Sign() <= 0 || minAmountOut == nil {
		return 0
	}
	if minAmountOut.Cmp(quote) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(quote, minAmountOut)
	bps := diff.Mul(diff, big.NewInt(MaxSlippageBps))
	bps.Div(bps, quote)
	return uint32(bps.Uint64())
}
