package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics mirrors the usage counters for Prometheus. The *_total series are
// monotonic across daily resets; the *_today gauges follow the live counters.
type Metrics struct {
	Registry *prometheus.Registry

	messages       prometheus.Counter
	aiResponses    prometheus.Counter
	searchCalls    prometheus.Counter
	tokens         prometheus.Counter
	aiFailures     prometheus.Counter
	searchFailures prometheus.Counter
	replies        *prometheus.CounterVec
}

// NewMetrics registers the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hamdam", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	m := &Metrics{
		Registry:       reg,
		messages:       counter("messages_processed_total", "Messages that entered the router."),
		aiResponses:    counter("ai_responses_total", "Replies produced by the AI tier."),
		searchCalls:    counter("search_calls_total", "Web searches attempted."),
		tokens:         counter("tokens_used_total", "Tokens reported by AI providers."),
		aiFailures:     counter("ai_failures_total", "AI calls that exhausted their retries."),
		searchFailures: counter("search_failures_total", "Failed web searches."),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hamdam",
			Name:      "replies_total",
			Help:      "Replies sent, by pipeline tier.",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.replies)
	reg.MustRegister(collectors.NewGoCollector())
	return m
}

// bind exposes the live daily counters as gauges.
func (m *Metrics) bind(s *Stats) {
	gauge := func(name, help string, f func(Snapshot) float64) {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hamdam", Name: name, Help: help,
		}, func() float64 { return f(s.Snapshot()) }))
	}
	gauge("messages_processed_today", "Messages processed since the last daily flush.",
		func(v Snapshot) float64 { return float64(v.MessagesProcessed) })
	gauge("estimated_cost_today_usd", "Estimated AI spend since the last daily flush.",
		func(v Snapshot) float64 { return v.EstimatedCost })
	gauge("tokens_used_today", "Tokens used since the last daily flush.",
		func(v Snapshot) float64 { return float64(v.TokensUsed) })
}

// ObserveReply counts a reply for the given tier label.
func (m *Metrics) ObserveReply(tier string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(tier).Inc()
}

func (m *Metrics) incMessages() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) incAIResponses() {
	if m != nil {
		m.aiResponses.Inc()
	}
}

func (m *Metrics) incSearchCalls() {
	if m != nil {
		m.searchCalls.Inc()
	}
}

func (m *Metrics) addTokens(n int) {
	if m != nil {
		m.tokens.Add(float64(n))
	}
}

func (m *Metrics) incAIFailures() {
	if m != nil {
		m.aiFailures.Inc()
	}
}

func (m *Metrics) incSearchFailures() {
	if m != nil {
		m.searchFailures.Inc()
	}
}
