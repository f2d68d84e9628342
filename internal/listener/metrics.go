package listener

import "github.com/prometheus/client_golang/prometheus"

// metrics counts listener activity. All methods are nil-safe so library
// users who pass no Registerer pay nothing.
type metrics struct {
	polls           prometheus.Counter
	blobsEvaluated  prometheus.Counter
	invocations     *prometheus.CounterVec
	transientFaults prometheus.Counter
	queueTicks      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidewatch_polls_total",
			Help: "Completed blob poll cycles.",
		}),
		blobsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidewatch_blobs_evaluated_total",
			Help: "Candidate blobs run through matching and freshness.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidewatch_invocations_total",
			Help: "Job invocations by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		transientFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidewatch_transient_faults_total",
			Help: "Transient store faults discarded during polls.",
		}),
		queueTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidewatch_queue_ticks_total",
			Help: "Queue timer ticks by trigger and result.",
		}, []string{"trigger", "result"}),
	}
	reg.MustRegister(m.polls, m.blobsEvaluated, m.invocations, m.transientFaults, m.queueTicks)
	return m
}

func (m *metrics) poll() {
	if m != nil {
		m.polls.Inc()
	}
}

func (m *metrics) blobEvaluated() {
	if m != nil {
		m.blobsEvaluated.Inc()
	}
}

func (m *metrics) invocation(trigger, outcome string) {
	if m != nil {
		m.invocations.WithLabelValues(trigger, outcome).Inc()
	}
}

func (m *metrics) transientFault() {
	if m != nil {
		m.transientFaults.Inc()
	}
}

func (m *metrics) queueTick(trigger, result string) {
	if m != nil {
		m.queueTicks.WithLabelValues(trigger, result).Inc()
	}
}
