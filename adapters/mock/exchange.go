package mock

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange is an in-memory venue for tests and local runs. Output is derived
// from a fixed rational rate, so results are deterministic.
type Exchange struct {
	mu sync.Mutex

	// RateNum/RateDen convert input to output: out = in * RateNum / RateDen.
	RateNum *big.Int
	RateDen *big.Int

	// QuoteErr/SwapErr, when set, are returned instead of a result.
	QuoteErr error
	SwapErr  error

	// SwapOut, when set, overrides the rate-derived settlement amount.
	SwapOut *big.Int

	QuoteCalls int
	SwapCalls  int
}

// NewExchange returns an exchange settling at the given rate.
func NewExchange(rateNum, rateDen int64) *Exchange {
	return &Exchange{RateNum: big.NewInt(rateNum), RateDen: big.NewInt(rateDen)}
}

func (e *Exchange) convert(amountIn *big.Int) (*big.Int, error) {
	if e.RateNum == nil || e.RateDen == nil || e.RateDen.Sign() == 0 {
		return nil, fmt.Errorf("mock exchange: rate not configured")
	}
	out := new(big.Int).Mul(amountIn, e.RateNum)
	return out.Div(out, e.RateDen), nil
}

// Quote returns the rate-derived expected output.
func (e *Exchange) Quote(_ context.Context, _, _ common.Address, amountIn *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.QuoteCalls++
	if e.QuoteErr != nil {
		return nil, e.QuoteErr
	}
	return e.convert(amountIn)
}

// Swap settles at the configured rate, or at SwapOut when set.
func (e *Exchange) Swap(_ context.Context, _, _ common.Address, amountIn, _ *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SwapCalls++
	if e.SwapErr != nil {
		return nil, e.SwapErr
	}
	if e.SwapOut != nil {
		return new(big.Int).Set(e.SwapOut), nil
	}
	return e.convert(amountIn)
}
