package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics exposes the state of the validator trust-and-delegation
// core to Prometheus.
type StakingMetrics struct {
	blockHeight prometheus.Gauge

	validatorsByStatus *prometheus.GaugeVec
	validatorsByTier   *prometheus.GaugeVec
	totalSelfStake     prometheus.Gauge
	totalDelegated     prometheus.Gauge
	activeDelegations  prometheus.Gauge
	knownPeers         prometheus.Gauge

	heartbeatsAccepted prometheus.Counter
	heartbeatsRejected *prometheus.CounterVec
	rewardsDistributed prometheus.Counter
}

// Declare a package-level variable for sync.Once to ensure metrics are registered only once
var stakingMetricsRegisterOnce sync.Once

// Declare a variable to hold the instance of StakingMetrics
var stakingMetricsInstance *StakingMetrics

// NewStakingMetrics initializes and registers the metrics, using sync.Once to ensure it's done only once
func NewStakingMetrics() *StakingMetrics {
	stakingMetricsRegisterOnce.Do(func() {
		stakingMetricsInstance = &StakingMetrics{
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_block_height",
				Help: "The last block height processed by the staking core",
			}),
			validatorsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "staking_validators",
				Help: "Current number of validators by status",
			}, []string{"status"}),
			validatorsByTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "staking_validators_by_tier",
				Help: "Current number of active validators by trust tier",
			}, []string{"tier"}),
			totalSelfStake: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_self_stake",
				Help: "Sum of validator self-stake in satoshi units",
			}),
			totalDelegated: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_delegated",
				Help: "Sum of delegated stake in satoshi units",
			}),
			activeDelegations: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_active_delegations",
				Help: "Current number of active delegation records",
			}),
			knownPeers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_known_validator_peers",
				Help: "Current number of known validator peers",
			}),
			heartbeatsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_heartbeats_accepted_total",
				Help: "The total number of heartbeats accepted",
			}),
			heartbeatsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_heartbeats_rejected_total",
				Help: "The total number of heartbeats rejected, by reason",
			}, []string{"reason"}),
			rewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_distributed_total",
				Help: "The total amount of delegator rewards distributed, in satoshi units",
			}),
		}

		prometheus.MustRegister(
			stakingMetricsInstance.blockHeight,
			stakingMetricsInstance.validatorsByStatus,
			stakingMetricsInstance.validatorsByTier,
			stakingMetricsInstance.totalSelfStake,
			stakingMetricsInstance.totalDelegated,
			stakingMetricsInstance.activeDelegations,
			stakingMetricsInstance.knownPeers,
			stakingMetricsInstance.heartbeatsAccepted,
			stakingMetricsInstance.heartbeatsRejected,
			stakingMetricsInstance.rewardsDistributed,
		)
	})

	return stakingMetricsInstance
}

func (sm *StakingMetrics) RecordBlockHeight(height uint32) {
	sm.blockHeight.Set(float64(height))
}

func (sm *StakingMetrics) RecordValidatorStatus(status string, count int) {
	sm.validatorsByStatus.WithLabelValues(status).Set(float64(count))
}

func (sm *StakingMetrics) RecordValidatorTier(tier string, count int) {
	sm.validatorsByTier.WithLabelValues(tier).Set(float64(count))
}

func (sm *StakingMetrics) RecordStakeTotals(selfStake, delegated int64) {
	sm.totalSelfStake.Set(float64(selfStake))
	sm.totalDelegated.Set(float64(delegated))
}

func (sm *StakingMetrics) RecordActiveDelegations(count int) {
	sm.activeDelegations.Set(float64(count))
}

func (sm *StakingMetrics) RecordKnownPeers(count int) {
	sm.knownPeers.Set(float64(count))
}

func (sm *StakingMetrics) IncrHeartbeatsAccepted() {
	sm.heartbeatsAccepted.Inc()
}

func (sm *StakingMetrics) IncrHeartbeatsRejected(reason string) {
	sm.heartbeatsRejected.WithLabelValues(reason).Inc()
}

func (sm *StakingMetrics) AddRewardsDistributed(amount int64) {
	sm.rewardsDistributed.Add(float64(amount))
}
