package httpx

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// Exchange talks to an external swap venue over HTTP. Amounts cross the wire
// as decimal strings so arbitrary-precision values survive the JSON hop.
type Exchange struct {
	client *resty.Client
}

// NewExchange builds a client for the venue at baseURL. The timeout bounds
// every request; transient failures are retried with backoff.
func NewExchange(baseURL string, timeout time.Duration) *Exchange {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	return &Exchange{client: client}
}

type swapRequest struct {
	AssetIn      string `json:"assetIn"`
	AssetOut     string `json:"assetOut"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut,omitempty"`
}

type swapResponse struct {
	AmountOut string `json:"amountOut"`
	Error     string `json:"error,omitempty"`
}

// Quote asks the venue for the expected output of the given input.
func (e *Exchange) Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return e.post(ctx, "/v1/quote", swapRequest{
		AssetIn:  assetIn.Hex(),
		AssetOut: assetOut.Hex(),
		AmountIn: amountIn.String(),
	})
}

// Swap executes the trade; the venue must settle at least minAmountOut or
// fail the request.
func (e *Exchange) Swap(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	return e.post(ctx, "/v1/swap", swapRequest{
		AssetIn:      assetIn.Hex(),
		AssetOut:     assetOut.Hex(),
		AmountIn:     amountIn.String(),
		MinAmountOut: minAmountOut.String(),
	})
}

func (e *Exchange) post(ctx context.Context, endpoint string, payload swapRequest) (*big.Int, error) {
	var out swapResponse
	// Some venues omit the JSON content type; decode the body as JSON
	// regardless.
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		ForceContentType("application/json").
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("httpx: %s: %w", endpoint, err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("httpx: %s: venue rejected request: %s", endpoint, out.Error)
		}
		return nil, fmt.Errorf("httpx: %s: venue returned status %d", endpoint, resp.StatusCode())
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(out.AmountOut), 10)
	if !ok {
		return nil, fmt.Errorf("httpx: %s: malformed amount %q", endpoint, out.AmountOut)
	}
	return amount, nil
}
