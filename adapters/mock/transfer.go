package mock

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Movement records one transfer leg observed by the mock.
type Movement struct {
	Account common.Address
	Asset   common.Address
	Amount  *big.Int
	Inbound bool
}

// Transferrer records transfer legs instead of moving real value. Errors can
// be injected per direction to exercise abort paths.
type Transferrer struct {
	mu sync.Mutex

	InErr  error
	OutErr error

	Movements []Movement
}

// NewTransferrer returns an empty recording transferrer.
func NewTransferrer() *Transferrer {
	return &Transferrer{}
}

func (t *Transferrer) TransferIn(_ context.Context, from, asset common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.InErr != nil {
		return t.InErr
	}
	t.Movements = append(t.Movements, Movement{Account: from, Asset: asset, Amount: new(big.Int).Set(amount), Inbound: true})
	return nil
}

func (t *Transferrer) TransferOut(_ context.Context, to, asset common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OutErr != nil {
		return t.OutErr
	}
	t.Movements = append(t.Movements, Movement{Account: to, Asset: asset, Amount: new(big.Int).Set(amount), Inbound: false})
	return nil
}
