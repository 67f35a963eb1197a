// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and structured logging for the orchestration engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for the orchestration
// engine: the Workflow Orchestrator, Agent Manager, Decision Engine,
// and Communication Bus.
type MetricsCollector struct {
	// Workflow Orchestrator metrics
	StepsTotal      *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	StepsInFlight   *prometheus.GaugeVec
	StepRetries     *prometheus.CounterVec
	WorkflowsTotal  *prometheus.CounterVec
	WorkflowQuality *prometheus.HistogramVec

	// Agent Manager metrics
	AgentLoad         *prometheus.GaugeVec
	AgentSuccessRate  *prometheus.GaugeVec
	AgentQualityScore *prometheus.GaugeVec
	AgentSelections   *prometheus.CounterVec

	// Decision Engine metrics
	DecisionTraversals *prometheus.CounterVec
	DecisionDuration   *prometheus.HistogramVec
	DecisionConfidence *prometheus.HistogramVec

	// Communication Bus metrics
	BusMessagesSent      *prometheus.CounterVec
	BusQueueDepth        *prometheus.GaugeVec
	BusDeliveryFailures  *prometheus.CounterVec
	BusMessagesDelivered *prometheus.CounterVec

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics with a specific registry (for testing).
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "orchestrator"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}

	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}

	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}

	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		StepsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of workflow steps executed by step type and terminal status",
			},
			[]string{"step_type", "status"},
		),
		StepDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step execution duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step_type"},
		),
		StepsInFlight: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "steps_in_flight",
				Help:      "Number of steps currently being executed",
			},
			[]string{"step_type"},
		),
		StepRetries: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts by step type",
			},
			[]string{"step_type"},
		),
		WorkflowsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Total number of workflow executions by terminal status",
			},
			[]string{"status"},
		),
		WorkflowQuality: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_quality_score",
				Help:      "Aggregate quality score of completed workflow executions",
				Buckets:   []float64{0, .25, .5, .6, .7, .8, .9, .95, 1},
			},
			[]string{"workflow_id"},
		),

		AgentLoad: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_load",
				Help:      "Current concurrent execution count for an agent",
			},
			[]string{"agent_id"},
		),
		AgentSuccessRate: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_success_rate",
				Help:      "Exponential moving average of an agent's success rate",
			},
			[]string{"agent_id"},
		),
		AgentQualityScore: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_quality_score",
				Help:      "Exponential moving average of an agent's output quality score",
			},
			[]string{"agent_id"},
		),
		AgentSelections: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_selections_total",
				Help:      "Total number of times an agent was selected by the load balancer for a step type",
			},
			[]string{"agent_id", "step_type"},
		),

		DecisionTraversals: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_traversals_total",
				Help:      "Total number of decision tree traversals by tree id and outcome",
			},
			[]string{"tree_id", "outcome_id"},
		),
		DecisionDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_traversal_duration_seconds",
				Help:      "Decision tree traversal duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"tree_id"},
		),
		DecisionConfidence: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_confidence",
				Help:      "Confidence score of decision tree outcomes",
				Buckets:   []float64{0, .25, .5, .6, .7, .8, .9, 1},
			},
			[]string{"tree_id"},
		),

		BusMessagesSent: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_sent_total",
				Help:      "Total number of messages submitted to the communication bus by type",
			},
			[]string{"message_type"},
		),
		BusQueueDepth: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bus_queue_depth",
				Help:      "Current number of queued messages for an agent",
			},
			[]string{"agent_id"},
		),
		BusDeliveryFailures: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_delivery_failures_total",
				Help:      "Total number of message delivery attempts that exhausted retries",
			},
			[]string{"message_type"},
		),
		BusMessagesDelivered: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_delivered_total",
				Help:      "Total number of messages successfully delivered by type",
			},
			[]string{"message_type"},
		),

		SystemStartTime: autoGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_start_time_seconds",
				Help:      "Unix timestamp when the system started",
			},
		),
		SystemHealth: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_health_status",
				Help:      "System health status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordStep records metrics for one terminal step attempt.
func (m *MetricsCollector) RecordStep(stepType, status string, duration time.Duration) {
	m.StepsTotal.WithLabelValues(stepType, status).Inc()
	m.StepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordStepRetry increments the retry counter for a step type.
func (m *MetricsCollector) RecordStepRetry(stepType string) {
	m.StepRetries.WithLabelValues(stepType).Inc()
}

// TrackStepInFlight tracks in-flight step executions.
func (m *MetricsCollector) TrackStepInFlight(stepType string, delta float64) {
	m.StepsInFlight.WithLabelValues(stepType).Add(delta)
}

// RecordWorkflow records a workflow execution's terminal status and, for
// completed executions, its aggregate quality score.
func (m *MetricsCollector) RecordWorkflow(workflowID, status string, qualityScore *float64) {
	m.WorkflowsTotal.WithLabelValues(status).Inc()
	if qualityScore != nil {
		m.WorkflowQuality.WithLabelValues(workflowID).Observe(*qualityScore)
	}
}

// UpdateAgentMetrics snapshots an agent's current EMA performance metrics.
func (m *MetricsCollector) UpdateAgentMetrics(agentID string, load int, successRate, qualityScore float64) {
	m.AgentLoad.WithLabelValues(agentID).Set(float64(load))
	m.AgentSuccessRate.WithLabelValues(agentID).Set(successRate)
	m.AgentQualityScore.WithLabelValues(agentID).Set(qualityScore)
}

// RecordAgentSelection records the load balancer's choice of agent for a step type.
func (m *MetricsCollector) RecordAgentSelection(agentID, stepType string) {
	m.AgentSelections.WithLabelValues(agentID, stepType).Inc()
}

// RecordDecisionTraversal records one decision-tree traversal.
func (m *MetricsCollector) RecordDecisionTraversal(treeID, outcomeID string, confidence float64, duration time.Duration) {
	m.DecisionTraversals.WithLabelValues(treeID, outcomeID).Inc()
	m.DecisionDuration.WithLabelValues(treeID).Observe(duration.Seconds())
	m.DecisionConfidence.WithLabelValues(treeID).Observe(confidence)
}

// RecordBusSend records a message submitted to the bus.
func (m *MetricsCollector) RecordBusSend(messageType string) {
	m.BusMessagesSent.WithLabelValues(messageType).Inc()
}

// RecordBusDelivery records a successfully delivered message.
func (m *MetricsCollector) RecordBusDelivery(messageType string) {
	m.BusMessagesDelivered.WithLabelValues(messageType).Inc()
}

// RecordBusDeliveryFailure records a message whose delivery attempts were exhausted.
func (m *MetricsCollector) RecordBusDeliveryFailure(messageType string) {
	m.BusDeliveryFailures.WithLabelValues(messageType).Inc()
}

// UpdateBusQueueDepth sets the current queue depth gauge for an agent.
func (m *MetricsCollector) UpdateBusQueueDepth(agentID string, depth int) {
	m.BusQueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

// SetSystemStartTime sets the system start time.
func (m *MetricsCollector) SetSystemStartTime(startTime time.Time) {
	m.SystemStartTime.Set(float64(startTime.Unix()))
}

// SetComponentHealth sets the health status of a component.
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(value)
}
