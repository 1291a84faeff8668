package voice

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuperseded Outcome = "superseded"
)

// TurnLatency is the timing of one finished turn.
type TurnLatency struct {
	CommandID uint64
	Source    Source
	Outcome   Outcome

	Agent time.Duration // agent call
	Speak time.Duration // agent answer to speech started
	Total time.Duration // turn created to speech started or turn end
}

// FormatLatency returns a one-line summary.
func (l TurnLatency) FormatLatency() string {
	return formatDuration(l.Agent) + " AGENT | " +
		formatDuration(l.Speak) + " TTS | " +
		formatDuration(l.Total) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}

const historySize = 100

// Metrics records turn outcomes and latencies, both as Prometheus series and
// as a short in-memory history for the dashboard.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	AgentDuration   *prometheus.HistogramVec
	SpeakLatency    prometheus.Histogram
	TurnsInFlight   prometheus.Gauge
	MicMuted        prometheus.Gauge
	MuteTransitions *prometheus.CounterVec

	mu      sync.Mutex
	history []TurnLatency
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kira"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversational turns by input source and outcome",
		},
		[]string{"source", "outcome"},
	)

	agentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Agent call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 60},
		},
		[]string{"source"},
	)

	speakLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speak_latency_seconds",
			Help:      "Time from agent answer to speech playback start",
			Buckets:   prometheus.ExponentialBuckets(0.05, 1.6, 10),
		},
	)

	turnsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turns_in_flight",
			Help:      "Turns whose agent call has not returned",
		},
	)

	micMuted := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mic_muted",
			Help:      "1 while the microphone is muted",
		},
	)

	muteTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mic_transitions_total",
			Help:      "Microphone mute and unmute transitions by cause",
		},
		[]string{"action", "cause"},
	)

	registry.MustRegister(
		turnsTotal,
		agentDuration,
		speakLatency,
		turnsInFlight,
		micMuted,
		muteTransitions,
	)

	return &Metrics{
		registry:        registry,
		TurnsTotal:      turnsTotal,
		AgentDuration:   agentDuration,
		SpeakLatency:    speakLatency,
		TurnsInFlight:   turnsInFlight,
		MicMuted:        micMuted,
		MuteTransitions: muteTransitions,
		history:         make([]TurnLatency, 0, historySize),
	}
}

// Registry returns the registry the series live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(l TurnLatency) {
	m.TurnsTotal.WithLabelValues(string(l.Source), string(l.Outcome)).Inc()
	if l.Outcome != OutcomeSuperseded && l.Agent > 0 {
		m.AgentDuration.WithLabelValues(string(l.Source)).Observe(l.Agent.Seconds())
	}
	if l.Speak > 0 {
		m.SpeakLatency.Observe(l.Speak.Seconds())
	}

	m.mu.Lock()
	m.history = append(m.history, l)
	if len(m.history) > historySize {
		m.history = m.history[1:]
	}
	m.mu.Unlock()
}

// RecordMute records a microphone transition.
func (m *Metrics) RecordMute(muted bool, cause string) {
	action := "unmute"
	v := 0.0
	if muted {
		action = "mute"
		v = 1
	}
	m.MicMuted.Set(v)
	m.MuteTransitions.WithLabelValues(action, cause).Inc()
}

// Last returns the most recent turn, or a zero value.
func (m *Metrics) Last() TurnLatency {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return TurnLatency{}
	}
	return m.history[len(m.history)-1]
}

// History returns recent turns, oldest first.
func (m *Metrics) History() []TurnLatency {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TurnLatency(nil), m.history...)
}

// Average returns mean latencies over recent completed turns.
func (m *Metrics) Average() TurnLatency {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg TurnLatency
	var n time.Duration
	for _, h := range m.history {
		if h.Outcome != OutcomeCompleted {
			continue
		}
		avg.Agent += h.Agent
		avg.Speak += h.Speak
		avg.Total += h.Total
		n++
	}
	if n == 0 {
		return TurnLatency{}
	}
	avg.Agent /= n
	avg.Speak /= n
	avg.Total /= n
	avg.Outcome = OutcomeCompleted
	return avg
}
