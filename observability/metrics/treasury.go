package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// TreasuryMetrics exposes Prometheus instrumentation for the payout
// lifecycle and dispute protocol.
type TreasuryMetrics struct {
	payoutsQueued        *prometheus.CounterVec
	payoutsReleased      *prometheus.CounterVec
	payoutsDenied        *prometheus.CounterVec
	payoutsCancelled     *prometheus.CounterVec
	challengesOpened     *prometheus.CounterVec
	appealsFiled         *prometheus.CounterVec
	rulingsFinalized     *prometheus.CounterVec
	bondsHeld            prometheus.Gauge
	governanceRejections *prometheus.CounterVec
	exitCustodyCount     *prometheus.CounterVec
}

var (
	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics
)

// Treasury returns the process-wide TreasuryMetrics singleton,
// registering its collectors with the default Prometheus registry on
// first use.
func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			payoutsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_payouts_queued_total",
				Help: "Count of payouts queued, by asset type.",
			}, []string{"asset_type"}),
			payoutsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_payouts_released_total",
				Help: "Count of payouts released, by asset type.",
			}, []string{"asset_type"}),
			payoutsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_payouts_denied_total",
				Help: "Count of payouts denied by a finalized ruling.",
			}, []string{"asset_type"}),
			payoutsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_payouts_cancelled_total",
				Help: "Count of payouts cancelled before release.",
			}, []string{"asset_type"}),
			challengesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_challenges_opened_total",
				Help: "Count of challenges opened against queued payouts.",
			}, []string{"safe"}),
			appealsFiled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_appeals_filed_total",
				Help: "Count of appeals filed, by resulting round.",
			}, []string{"round"}),
			rulingsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_rulings_finalized_total",
				Help: "Count of finalized rulings, by outcome.",
			}, []string{"outcome"}),
			bondsHeld: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "treasury_bond_vault_total_held",
				Help: "Current total amount held across all outstanding challenge and appeal bonds.",
			}),
			governanceRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_governance_proof_rejections_total",
				Help: "Count of governance-proof authorizations rejected, by reason.",
			}, []string{"reason"}),
			exitCustodyCount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_exit_custody_total",
				Help: "Count of exit_custody invocations, by asset type.",
			}, []string{"asset_type"}),
		}
		prometheus.MustRegister(
			treasuryRegistry.payoutsQueued,
			treasuryRegistry.payoutsReleased,
			treasuryRegistry.payoutsDenied,
			treasuryRegistry.payoutsCancelled,
			treasuryRegistry.challengesOpened,
			treasuryRegistry.appealsFiled,
			treasuryRegistry.rulingsFinalized,
			treasuryRegistry.bondsHeld,
			treasuryRegistry.governanceRejections,
			treasuryRegistry.exitCustodyCount,
		)
	})
	return treasuryRegistry
}

func (m *TreasuryMetrics) ObservePayoutQueued(assetType string) {
	if m == nil {
		return
	}
	m.payoutsQueued.WithLabelValues(assetType).Inc()
}

func (m *TreasuryMetrics) ObservePayoutReleased(assetType string) {
	if m == nil {
		return
	}
	m.payoutsReleased.WithLabelValues(assetType).Inc()
}

func (m *TreasuryMetrics) ObservePayoutDenied(assetType string) {
	if m == nil {
		return
	}
	m.payoutsDenied.WithLabelValues(assetType).Inc()
}

func (m *TreasuryMetrics) ObservePayoutCancelled(assetType string) {
	if m == nil {
		return
	}
	m.payoutsCancelled.WithLabelValues(assetType).Inc()
}

func (m *TreasuryMetrics) ObserveChallengeOpened(safe string) {
	if m == nil {
		return
	}
	m.challengesOpened.WithLabelValues(safe).Inc()
}

func (m *TreasuryMetrics) ObserveAppealFiled(round uint8) {
	if m == nil {
		return
	}
	m.appealsFiled.WithLabelValues(fmt.Sprintf("%d", round)).Inc()
}

func (m *TreasuryMetrics) ObserveRulingFinalized(outcome string) {
	if m == nil {
		return
	}
	m.rulingsFinalized.WithLabelValues(outcome).Inc()
}

func (m *TreasuryMetrics) SetBondsHeld(total float64) {
	if m == nil {
		return
	}
	m.bondsHeld.Set(total)
}

func (m *TreasuryMetrics) ObserveGovernanceRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.governanceRejections.WithLabelValues(reason).Inc()
}

func (m *TreasuryMetrics) ObserveExitCustody(assetType string) {
	if m == nil {
		return
	}
	m.exitCustodyCount.WithLabelValues(assetType).Inc()
}
