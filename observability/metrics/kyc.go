package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// KYCMetrics tracks access gate administration and decisions.
type KYCMetrics struct {
	denials *prometheus.CounterVec
	admin   *prometheus.CounterVec
}

var (
	kycOnce     sync.Once
	kycRegistry *KYCMetrics
)

// KYC returns the singleton gate metrics registry.
func KYC() *KYCMetrics {
	kycOnce.Do(func() {
		kycRegistry = &KYCMetrics{
			denials: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "phx_kyc_denials_total",
				Help: "Gated commands rejected by the access gate, by reason.",
			}, []string{"reason"}),
			admin: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "phx_kyc_admin_actions_total",
				Help: "Administrative gate actions by kind.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(kycRegistry.denials, kycRegistry.admin)
	})
	return kycRegistry
}

// RecordDenial counts a gate rejection. reason should be a stable code.
func (m *KYCMetrics) RecordDenial(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.denials.WithLabelValues(reason).Inc()
}

// RecordAdminAction counts verify, revoke and blacklist calls.
func (m *KYCMetrics) RecordAdminAction(action string) {
	if m == nil || action == "" {
		return
	}
	m.admin.WithLabelValues(action).Inc()
}
