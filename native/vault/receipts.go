package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReceiptBook persists trade receipts and a per-user index so recent trades
// can be listed without scanning the store.
type ReceiptBook struct {
	store Storage
}

// NewReceiptBook binds the book to a storage backend.
func NewReceiptBook(store Storage) *ReceiptBook {
	return &ReceiptBook{store: store}
}

type storedReceipt struct {
	ID        string
	User      common.Address
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
	Timestamp uint64
}

type receiptIndex struct {
	IDs []string
}

// Put stores the receipt and appends it to the owner's index.
func (b *ReceiptBook) Put(receipt *TradeReceipt) error {
	if b == nil || b.store == nil {
		return fmt.Errorf("vault: receipt book not initialised")
	}
	if receipt == nil || receipt.ID == "" {
		return fmt.Errorf("vault: receipt requires an id")
	}
	record := storedReceipt{
		ID:        receipt.ID,
		User:      receipt.User,
		AssetIn:   receipt.AssetIn,
		AssetOut:  receipt.AssetOut,
		AmountIn:  cloneBigInt(receipt.AmountIn),
		AmountOut: cloneBigInt(receipt.AmountOut),
		Fee:       cloneBigInt(receipt.Fee),
		Timestamp: uint64(receipt.Timestamp),
	}
	if err := b.store.KVPut(receiptKey(receipt.ID), record); err != nil {
		return err
	}
	var index receiptIndex
	if _, err := b.store.KVGet(receiptIndexKey(receipt.User), &index); err != nil {
		return err
	}
	index.IDs = append(index.IDs, receipt.ID)
	return b.store.KVPut(receiptIndexKey(receipt.User), index)
}

// Get loads a receipt by id.
func (b *ReceiptBook) Get(id string) (*TradeReceipt, bool, error) {
	if b == nil || b.store == nil {
		return nil, false, fmt.Errorf("vault: receipt book not initialised")
	}
	var record storedReceipt
	ok, err := b.store.KVGet(receiptKey(id), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.toReceipt(), true, nil
}

// History returns the user's most recent receipts, newest first, capped at
// limit. A non-positive limit returns everything.
func (b *ReceiptBook) History(user common.Address, limit int) ([]*TradeReceipt, error) {
	if b == nil || b.store == nil {
		return nil, fmt.Errorf("vault: receipt book not initialised")
	}
	var index receiptIndex
	if _, err := b.store.KVGet(receiptIndexKey(user), &index); err != nil {
		return nil, err
	}
	ids := index.IDs
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]*TradeReceipt, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		receipt, ok, err := b.Get(ids[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, receipt)
	}
	return out, nil
}

func (r storedReceipt) toReceipt() *TradeReceipt {
	return &TradeReceipt{
		ID:        r.ID,
		User:      r.User,
		AssetIn:   r.AssetIn,
		AssetOut:  r.AssetOut,
		AmountIn:  cloneBigInt(r.AmountIn),
		AmountOut: cloneBigInt(r.AmountOut),
		Fee:       cloneBigInt(r.Fee),
		Timestamp: int64(r.Timestamp),
	}
}
