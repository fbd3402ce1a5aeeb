package vault

import "github.com/ethereum/go-ethereum/common"

var (
	balancePrefix      = []byte("vault/balance/")
	policyPrefix       = []byte("vault/policy/")
	tradeClockPrefix   = []byte("vault/clock/")
	totalDepositPrefix = []byte("vault/deposits/")
	receiptPrefix      = []byte("vault/receipt/")
	receiptIndexPrefix = []byte("vault/receipt-index/")
	feeConfigKey       = []byte("vault/feeconfig")
	pauseKey           = []byte("vault/paused")
)

func balanceKey(user, asset common.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(user)+1+len(asset))
	buf = append(buf, balancePrefix...)
	buf = append(buf, user.Bytes()...)
	buf = append(buf, '/')
	buf = append(buf, asset.Bytes()...)
	return buf
}

func policyKey(user common.Address) []byte {
	buf := make([]byte, 0, len(policyPrefix)+len(user))
	buf = append(buf, policyPrefix...)
	buf = append(buf, user.Bytes()...)
	return buf
}

func tradeClockKey(user common.Address) []byte {
	buf := make([]byte, 0, len(tradeClockPrefix)+len(user))
	buf = append(buf, tradeClockPrefix...)
	buf = append(buf, user.Bytes()...)
	return buf
}

func totalDepositKey(asset common.Address) []byte {
	buf := make([]byte, 0, len(totalDepositPrefix)+len(asset))
	buf = append(buf, totalDepositPrefix...)
	buf = append(buf, asset.Bytes()...)
	return buf
}

func receiptKey(id string) []byte {
	buf := make([]byte, 0, len(receiptPrefix)+len(id))
	buf = append(buf, receiptPrefix...)
	buf = append(buf, id...)
	return buf
}

func receiptIndexKey(user common.Address) []byte {
	buf := make([]byte, 0, len(receiptIndexPrefix)+len(user))
	buf = append(buf, receiptIndexPrefix...)
	buf = append(buf, user.Bytes()...)
	return buf
}
