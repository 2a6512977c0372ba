package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusGauges exposes the live coordination gauges (vote counts,
// enforcement retries, per-agent phase) that the Coordination Observability
// Store writes to status.json as a scrapeable /metrics endpoint. This runs
// alongside status.json, not instead of it: status.json remains the single
// authoritative store (spec §4.7); Prometheus only mirrors a subset of it
// for dashboards.
type PrometheusGauges struct {
	registry *prometheus.Registry

	votes              *prometheus.GaugeVec
	enforcementRetries *prometheus.GaugeVec
	agentPhase         *prometheus.GaugeVec
}

// NewPrometheusGauges constructs a fresh gauge set registered on its own
// registry, isolated from any process-wide default registry.
func NewPrometheusGauges() *PrometheusGauges {
	reg := prometheus.NewRegistry()

	votes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "massgen_votes_total",
		Help: "Current live vote count per answer label.",
	}, []string{"run_id", "answer_label"})

	enforcementRetries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "massgen_enforcement_attempts",
		Help: "Enforcement-restart attempts per agent for the current turn.",
	}, []string{"run_id", "agent_id"})

	agentPhase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "massgen_agent_phase",
		Help: "Encodes the current phase of each agent as an integer (see Phase ordinals).",
	}, []string{"run_id", "agent_id"})

	reg.MustRegister(votes, enforcementRetries, agentPhase)

	return &PrometheusGauges{
		registry:           reg,
		votes:              votes,
		enforcementRetries: enforcementRetries,
		agentPhase:         agentPhase,
	}
}

// SetVotes records the current live vote count for one answer label.
func (g *PrometheusGauges) SetVotes(runID, answerLabel string, count int) {
	g.votes.WithLabelValues(runID, answerLabel).Set(float64(count))
}

// SetEnforcementAttempts records the current enforcement-retry count for an agent.
func (g *PrometheusGauges) SetEnforcementAttempts(runID, agentID string, attempts int) {
	g.enforcementRetries.WithLabelValues(runID, agentID).Set(float64(attempts))
}

// SetAgentPhase records an agent's current phase ordinal.
func (g *PrometheusGauges) SetAgentPhase(runID, agentID string, phase int) {
	g.agentPhase.WithLabelValues(runID, agentID).Set(float64(phase))
}

// Handler returns the HTTP handler the embedding application mounts at
// "/metrics".
func (g *PrometheusGauges) Handler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})
}
