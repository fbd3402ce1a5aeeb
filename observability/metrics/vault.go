package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	deposits       *prometheus.CounterVec
	withdrawals    *prometheus.CounterVec
	tradesExecuted prometheus.Counter
	tradesRejected *prometheus.CounterVec
	protocolFees   *prometheus.CounterVec
	tradeVolumeIn  *prometheus.CounterVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_deposits_total",
				Help: "Count of committed deposits by asset.",
			}, []string{"asset"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_withdrawals_total",
				Help: "Count of committed withdrawals by asset.",
			}, []string{"asset"}),
			tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_trades_executed_total",
				Help: "Count of trades that fully committed.",
			}),
			tradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_trades_rejected_total",
				Help: "Count of rejected trade attempts by reason.",
			}, []string{"reason"}),
			protocolFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_protocol_fees_total",
				Help: "Cumulative protocol fees collected, in minor units, by asset.",
			}, []string{"asset"}),
			tradeVolumeIn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_trade_volume_in_total",
				Help: "Cumulative traded input volume, in minor units, by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			vaultRegistry.deposits,
			vaultRegistry.withdrawals,
			vaultRegistry.tradesExecuted,
			vaultRegistry.tradesRejected,
			vaultRegistry.protocolFees,
			vaultRegistry.tradeVolumeIn,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveDeposit(asset string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(asset).Inc()
}

func (m *VaultMetrics) ObserveWithdrawal(asset string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(asset).Inc()
}

func (m *VaultMetrics) ObserveTradeExecuted(assetIn, assetOut string, amountIn, fee float64) {
	if m == nil {
		return
	}
	m.tradesExecuted.Inc()
	m.tradeVolumeIn.WithLabelValues(assetIn).Add(amountIn)
	if fee > 0 {
		m.protocolFees.WithLabelValues(assetOut).Add(fee)
	}
}

func (m *VaultMetrics) ObserveTradeRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.tradesRejected.WithLabelValues(reason).Inc()
}
