package vault

import (
	"fmt"

	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PolicyStore holds per-user risk configuration and the per-user trade
// clock. Writes are expected to run inside the engine's per-user critical
// section; the store itself is a thin table over Storage.
type PolicyStore struct {
	store Storage
}

// NewPolicyStore binds the store to a storage backend.
func NewPolicyStore(store Storage) *PolicyStore {
	return &PolicyStore{store: store}
}

type policyRecord struct {
	MaxSlippageBps  uint32
	MaxTradeSize    *big.Int
	CooldownSeconds uint64
	TokenAllowlist  []common.Address
}

type clockRecord struct {
	LastTradeTimestamp uint64
}

// Get returns the stored policy for user and whether one exists.
func (s *PolicyStore) Get(user common.Address) (Policy, bool, error) {
	if s == nil || s.store == nil {
		return Policy{}, false, fmt.Errorf("vault: policy store not initialised")
	}
	var record policyRecord
	ok, err := s.store.KVGet(policyKey(user), &record)
	if err != nil {
		return Policy{}, false, err
	}
	if !ok {
		return Policy{}, false, nil
	}
	policy := Policy{
		MaxSlippageBps:  record.MaxSlippageBps,
		MaxTradeSize:    record.MaxTradeSize,
		CooldownSeconds: record.CooldownSeconds,
		TokenAllowlist:  record.TokenAllowlist,
	}
	return policy, true, nil
}

// Put overwrites the user's policy in full; there is no partial merge.
// MaxSlippageBps above 10000 is clamped silently.
func (s *PolicyStore) Put(user common.Address, policy Policy) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("vault: policy store not initialised")
	}
	normalised := policy.Normalise()
	record := policyRecord{
		MaxSlippageBps:  normalised.MaxSlippageBps,
		MaxTradeSize:    normalised.MaxTradeSize,
		CooldownSeconds: normalised.CooldownSeconds,
		TokenAllowlist:  normalised.TokenAllowlist,
	}
	return s.store.KVPut(policyKey(user), record)
}

// InitializeDefault writes the default policy only when no policy exists
// yet. It reports whether a write happened, and never overwrites.
func (s *PolicyStore) InitializeDefault(user common.Address) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("vault: policy store not initialised")
	}
	ok, err := s.store.KVGet(policyKey(user), nil)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.Put(user, DefaultPolicy()); err != nil {
		return false, err
	}
	return true, nil
}

// LastTradeTimestamp returns the user's trade clock; zero when the user has
// never traded.
func (s *PolicyStore) LastTradeTimestamp(user common.Address) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("vault: policy store not initialised")
	}
	var record clockRecord
	ok, err := s.store.KVGet(tradeClockKey(user), &record)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return int64(record.LastTradeTimestamp), nil
}

// SetLastTradeTimestamp advances the user's trade clock. Only the trade
// orchestrator calls this, as part of a committed trade.
func (s *PolicyStore) SetLastTradeTimestamp(user common.Address, ts int64) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("vault: policy store not initialised")
	}
	if ts < 0 {
		return fmt.Errorf("vault: trade timestamp must be non-negative")
	}
	return s.store.KVPut(tradeClockKey(user), clockRecord{LastTradeTimestamp: uint64(ts)})
}
