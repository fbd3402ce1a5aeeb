package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Storage abstracts the subset of state manager functionality required by the
// vault tables. Both state.Manager (direct reads) and state.Txn (staged,
// atomically committed writes) satisfy it.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// NativeAsset is the zero address. It always passes allowlist checks, even
// when a policy restricts trading to an explicit set of tokens.
var NativeAsset = common.Address{}

const (
	// MaxSlippageBps is the ceiling for any slippage figure; 10000 bps is 100%.
	MaxSlippageBps = 10_000
	// MaxProtocolFeeBps caps the protocol fee. Attempts to configure a higher
	// fee are clamped, not rejected.
	MaxProtocolFeeBps = 100

	// DefaultMaxSlippageBps applies when a user never set a policy.
	DefaultMaxSlippageBps = 300
	// DefaultCooldownSeconds applies when a user never set a policy.
	DefaultCooldownSeconds = 60
)

// DefaultMaxTradeSize is the per-trade size limit written by
// InitializeDefaultPolicy, in minor units.
var DefaultMaxTradeSize = big.NewInt(1_000_000_000_000)

// Policy captures a user's risk configuration. An empty TokenAllowlist means
// every asset is permitted.
type Policy struct {
	MaxSlippageBps  uint32
	MaxTradeSize    *big.Int
	CooldownSeconds uint64
	TokenAllowlist  []common.Address
}

// DefaultPolicy returns the values InitializeDefaultPolicy persists.
func DefaultPolicy() Policy {
	return Policy{
		MaxSlippageBps:  DefaultMaxSlippageBps,
		MaxTradeSize:    new(big.Int).Set(DefaultMaxTradeSize),
		CooldownSeconds: DefaultCooldownSeconds,
	}
}

// Normalise clamps out-of-range fields and fills nil amounts with zero
// values so stored policies are always canonical.
func (p Policy) Normalise() Policy {
	normalised := Policy{
		MaxSlippageBps:  p.MaxSlippageBps,
		CooldownSeconds: p.CooldownSeconds,
	}
	if normalised.MaxSlippageBps > MaxSlippageBps {
		normalised.MaxSlippageBps = MaxSlippageBps
	}
	if p.MaxTradeSize != nil {
		normalised.MaxTradeSize = new(big.Int).Set(p.MaxTradeSize)
	} else {
		normalised.MaxTradeSize = big.NewInt(0)
	}
	if len(p.TokenAllowlist) > 0 {
		normalised.TokenAllowlist = append([]common.Address{}, p.TokenAllowlist...)
	}
	return normalised
}

// Copy returns a deep copy to shield callers from accidental mutation.
func (p Policy) Copy() Policy {
	clone := Policy{
		MaxSlippageBps:  p.MaxSlippageBps,
		CooldownSeconds: p.CooldownSeconds,
	}
	if p.MaxTradeSize != nil {
		clone.MaxTradeSize = new(big.Int).Set(p.MaxTradeSize)
	}
	if len(p.TokenAllowlist) > 0 {
		clone.TokenAllowlist = append([]common.Address{}, p.TokenAllowlist...)
	}
	return clone
}

// FeeConfig is the process-wide protocol fee singleton.
type FeeConfig struct {
	Recipient common.Address
	FeeBps    uint32
}

// TradeReceipt summarises a committed trade.
type TradeReceipt struct {
	ID        string
	User      common.Address
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
	Timestamp int64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
