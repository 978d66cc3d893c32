package metrics

import "github.com/prometheus/client_golang/prometheus"

// AccountMetrics holds the per-process metric set covering channel
// lifecycle, claim issuance/validation, and settlement/watcher activity.
type AccountMetrics struct {
	ChannelsTotal     *prometheus.CounterVec   // channels opened/closed by direction and result
	ChannelValue      *prometheus.GaugeVec     // on-chain value by channel_id and direction
	ChannelSpent      *prometheus.GaugeVec     // spent amount by channel_id and direction
	ClaimsIssued      *prometheus.CounterVec   // outgoing claims signed, by account
	ClaimsValidated   *prometheus.CounterVec   // incoming claims, by account and result
	ClaimAmount       *prometheus.HistogramVec // wei per accepted claim increment
	SettlementEvents  *prometheus.CounterVec   // open/deposit/claim transaction outcomes, by kind and result
	WatcherActions    *prometheus.CounterVec   // watcher poll outcomes (noop, claim_queued, terminated)
	ReceivableBalance *prometheus.GaugeVec     // current receivableBalance by account, in gwei
	PayableBalance    *prometheus.GaugeVec     // current payableBalance by account, in gwei
}

// NewAccountMetrics registers the account metric set against reg.
func NewAccountMetrics(reg *Registry) *AccountMetrics {
	return &AccountMetrics{
		ChannelsTotal: reg.Counter(
			"channels_total",
			"Channels opened or closed, by direction and result",
			"direction", "result",
		),
		ChannelValue: reg.Gauge(
			"channel_value_wei",
			"On-chain channel value in wei",
			"channel_id", "direction",
		),
		ChannelSpent: reg.Gauge(
			"channel_spent_wei",
			"Spent amount of a channel's value in wei",
			"channel_id", "direction",
		),
		ClaimsIssued: reg.Counter(
			"claims_issued_total",
			"Outgoing signed claims, by account",
			"account",
		),
		ClaimsValidated: reg.Counter(
			"claims_validated_total",
			"Incoming claims processed, by account and result",
			"account", "result",
		),
		ClaimAmount: reg.Histogram(
			"claim_amount_wei",
			"Wei credited per accepted incoming claim increment",
			WeiBuckets,
			"account",
		),
		SettlementEvents: reg.Counter(
			"settlement_events_total",
			"On-chain open, deposit and claim transactions, by kind and result",
			"kind", "result",
		),
		WatcherActions: reg.Counter(
			"watcher_actions_total",
			"Channel watcher poll outcomes, by account and action",
			"account", "action",
		),
		ReceivableBalance: reg.Gauge(
			"receivable_balance_gwei",
			"Current receivableBalance, in gwei",
			"account",
		),
		PayableBalance: reg.Gauge(
			"payable_balance_gwei",
			"Current payableBalance, in gwei",
			"account",
		),
	}
}
