package fees

import "math/big"

// MaxProtocolFeeBps caps the protocol fee rate. Configurations above the cap
// are clamped, not rejected.
const MaxProtocolFeeBps uint32 = 100

// ClampBps pins a requested fee rate to the protocol cap.
func ClampBps(bps uint32) uint32 {
	if bps > MaxProtocolFeeBps {
		return MaxProtocolFeeBps
	}
	return bps
}

// ApplyResult summarises the fee split of a settled amount.
type ApplyResult struct {
	Fee *big.Int
	Net *big.Int
}

// Apply computes fee = gross * bps / 10000 with integer floor division and
// returns the fee alongside the remaining net amount. A nil or non-positive
// gross yields a zero split.
func Apply(gross *big.Int, bps uint32) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0)}
	if gross != nil {
		result.Net = new(big.Int).Set(gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 || bps == 0 {
		return result
	}
	fee := new(big.Int).Mul(result.Net, big.NewInt(int64(bps)))
	fee = fee.Div(fee, big.NewInt(10_000))
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}
