package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the authoritative store of per-user, per-asset custodial
// balances. Balances are non-negative integers in the asset's minor unit;
// a zero balance is a valid state, not an absence. All mutation goes through
// checked credit/debit so no operation can drive a balance negative.
type Ledger struct {
	store Storage
}

// NewLedger binds the ledger to a storage backend. Binding it to a state.Txn
// makes every mutation part of that transaction.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

type balanceRecord struct {
	Amount *big.Int
}

// Balance returns the custodial balance for (user, asset). Missing entries
// read as zero.
func (l *Ledger) Balance(user, asset common.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	var record balanceRecord
	ok, err := l.store.KVGet(balanceKey(user, asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

// Balances returns the balances for the given assets, in order.
func (l *Ledger) Balances(user common.Address, assets []common.Address) ([]*big.Int, error) {
	out := make([]*big.Int, len(assets))
	for i, asset := range assets {
		balance, err := l.Balance(user, asset)
		if err != nil {
			return nil, err
		}
		out[i] = balance
	}
	return out, nil
}

// Credit adds amount to the (user, asset) balance.
func (l *Ledger) Credit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("vault: credit amount must be non-negative")
	}
	current, err := l.Balance(user, asset)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(current, amount)
	return l.store.KVPut(balanceKey(user, asset), balanceRecord{Amount: updated})
}

// Debit subtracts amount from the (user, asset) balance with checked
// subtraction: the operation fails rather than leaving a negative balance.
func (l *Ledger) Debit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("vault: debit amount must be non-negative")
	}
	current, err := l.Balance(user, asset)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return &InsufficientBalanceError{
			Have: new(big.Int).Set(current),
			Need: new(big.Int).Set(amount),
		}
	}
	updated := new(big.Int).Sub(current, amount)
	return l.store.KVPut(balanceKey(user, asset), balanceRecord{Amount: updated})
}

// AddTotalDeposits bumps the running per-asset deposit accumulator. The
// engine serialises calls through its shared-state lock.
func (l *Ledger) AddTotalDeposits(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("vault: deposit total must be non-negative")
	}
	current, err := l.TotalDeposited(asset)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(current, amount)
	return l.store.KVPut(totalDepositKey(asset), balanceRecord{Amount: updated})
}

// TotalDeposited returns the running sum of all deposits for an asset.
func (l *Ledger) TotalDeposited(asset common.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("vault: ledger not initialised")
	}
	var record balanceRecord
	ok, err := l.store.KVGet(totalDepositKey(asset), &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}
