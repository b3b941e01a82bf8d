package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Metrics holds the Prometheus collectors for scheduling and payments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobsSubmitted        prometheus.Counter
	jobTransitions       *prometheus.CounterVec
	pollsAtCapacity      prometheus.Counter
	announceFailures     prometheus.Counter
	paymentVerifications *prometheus.CounterVec
	distributions        *prometheus.CounterVec
	activeNodes          prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiforge_jobs_submitted_total",
			Help: "Jobs submitted to the scheduler",
		}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiforge_job_transitions_total",
			Help: "Job status transitions by target status",
		}, []string{"status"}),
		pollsAtCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiforge_job_polls_at_capacity_total",
			Help: "Polls rejected because the node was at capacity",
		}),
		announceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiforge_job_announce_failures_total",
			Help: "Work announcements that could not be pushed",
		}),
		paymentVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiforge_payment_verifications_total",
			Help: "Payment verification attempts by network and outcome",
		}, []string{"network", "outcome"}),
		distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiforge_distributions_total",
			Help: "Revenue and NFT reward distributions",
		}, []string{"kind"}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiforge_active_nodes",
			Help: "Nodes currently active",
		}),
	}

	reg.MustRegister(
		m.jobsSubmitted,
		m.jobTransitions,
		m.pollsAtCapacity,
		m.announceFailures,
		m.paymentVerifications,
		m.distributions,
		m.activeNodes,
	)
	return m
}

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.jobsSubmitted.Inc()
	}
}

func (m *Metrics) JobTransition(status string) {
	if m != nil {
		m.jobTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) PollAtCapacity() {
	if m != nil {
		m.pollsAtCapacity.Inc()
	}
}

func (m *Metrics) AnnounceFailed() {
	if m != nil {
		m.announceFailures.Inc()
	}
}

func (m *Metrics) PaymentVerification(network, outcome string) {
	if m != nil {
		m.paymentVerifications.WithLabelValues(network, outcome).Inc()
	}
}

func (m *Metrics) Distribution(kind string) {
	if m != nil {
		m.distributions.WithLabelValues(kind).Inc()
	}
}

// NodeCounter reports how many nodes are active
type NodeCounter interface {
	CountActiveNodes(ctx context.Context) (int, error)
}

// Start refreshes the active node gauge on every interval until ctx is done
func (m *Metrics) Start(ctx context.Context, nodes NodeCounter, interval time.Duration) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := nodes.CountActiveNodes(ctx)
			if err != nil {
				log.Printf("Failed to count active nodes: %v", err)
				continue
			}
			m.activeNodes.Set(float64(n))
		}
	}
}
