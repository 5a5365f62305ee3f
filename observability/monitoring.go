package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Observation verdicts, used as the "verdict" label.
const (
	VerdictAccepted  = "accepted"
	VerdictDuplicate = "duplicate"
	VerdictForeign   = "foreign"
	VerdictSelf      = "self"
	VerdictInvalid   = "invalid"
)

// MessagingStats is the snapshot served on the debug endpoint.
type MessagingStats struct {
	Sends          uint64  `json:"sends"`
	Confirmed      uint64  `json:"confirmed"`
	RolledBack     uint64  `json:"rolled_back"`
	Observed       uint64  `json:"observed"`
	Accepted       uint64  `json:"accepted"`
	Discarded      uint64  `json:"discarded"`
	HistoryLoads   uint64  `json:"history_loads"`
	HistoryErrors  uint64  `json:"history_errors"`
	PollFallbacks  uint64  `json:"poll_fallbacks"`
	OpenViews      int64   `json:"open_views"`
	SubscribedView int64   `json:"subscribed_views"`
	RSSBytes       uint64  `json:"rss_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
}

// MessagingMonitor counts what the messaging core does.
// Counters are atomics for the stats snapshot and mirrored to Prometheus.
type MessagingMonitor struct {
	sends         uint64
	confirmed     uint64
	rolledBack    uint64
	observed      uint64
	accepted      uint64
	discarded     uint64
	historyLoads  uint64
	historyErrors uint64
	pollFallbacks uint64
	openViews     int64
	subscribed    int64
	rssBytes      uint64
	cpuPermille   uint64

	sendTotal        *prometheus.CounterVec
	observationTotal *prometheus.CounterVec
	historyTotal     *prometheus.CounterVec
	fallbackTotal    prometheus.Counter
	openGauge        prometheus.Gauge
	subscribedGauge  prometheus.Gauge
	rssGauge         prometheus.Gauge
	cpuGauge         prometheus.Gauge
}

// NewMessagingMonitor registers the collectors on reg.
func NewMessagingMonitor(reg prometheus.Registerer) *MessagingMonitor {
	m := &MessagingMonitor{
		sendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "businessconnect",
			Name:      "sends_total",
			Help:      "Messages sent, by outcome.",
		}, []string{"outcome"}),
		observationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "businessconnect",
			Name:      "observations_total",
			Help:      "Observed inserts fed to the merge engine, by verdict.",
		}, []string{"verdict"}),
		historyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "businessconnect",
			Name:      "history_loads_total",
			Help:      "Conversation history fetches, by outcome.",
		}, []string{"outcome"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "businessconnect",
			Name:      "poll_fallbacks_total",
			Help:      "Views that had to poll because realtime was unavailable.",
		}),
		openGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "businessconnect",
			Name:      "open_views",
			Help:      "Conversation views currently open.",
		}),
		subscribedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "businessconnect",
			Name:      "subscribed_views",
			Help:      "Conversation views holding a realtime subscription.",
		}),
		rssGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "businessconnect",
			Name:      "client_rss_bytes",
			Help:      "Resident memory of the client process, sampled by the heartbeat.",
		}),
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "businessconnect",
			Name:      "client_cpu_percent",
			Help:      "CPU usage of the client process, sampled by the heartbeat.",
		}),
	}
	reg.MustRegister(m.sendTotal, m.observationTotal, m.historyTotal,
		m.fallbackTotal, m.openGauge, m.subscribedGauge, m.rssGauge, m.cpuGauge)
	return m
}

func (m *MessagingMonitor) IncrSend() {
	atomic.AddUint64(&m.sends, 1)
	m.sendTotal.WithLabelValues("submitted").Inc()
}

func (m *MessagingMonitor) IncrConfirmed() {
	atomic.AddUint64(&m.confirmed, 1)
	m.sendTotal.WithLabelValues("confirmed").Inc()
}

func (m *MessagingMonitor) IncrRolledBack() {
	atomic.AddUint64(&m.rolledBack, 1)
	m.sendTotal.WithLabelValues("rolled_back").Inc()
}

// IncrObservation records one merge decision.
func (m *MessagingMonitor) IncrObservation(verdict string) {
	atomic.AddUint64(&m.observed, 1)
	if verdict == VerdictAccepted {
		atomic.AddUint64(&m.accepted, 1)
	} else {
		atomic.AddUint64(&m.discarded, 1)
	}
	m.observationTotal.WithLabelValues(verdict).Inc()
}

func (m *MessagingMonitor) IncrHistory(err error) {
	if err != nil {
		atomic.AddUint64(&m.historyErrors, 1)
		m.historyTotal.WithLabelValues("failed").Inc()
		return
	}
	atomic.AddUint64(&m.historyLoads, 1)
	m.historyTotal.WithLabelValues("loaded").Inc()
}

func (m *MessagingMonitor) IncrPollFallback() {
	atomic.AddUint64(&m.pollFallbacks, 1)
	m.fallbackTotal.Inc()
}

func (m *MessagingMonitor) ViewOpened() {
	atomic.AddInt64(&m.openViews, 1)
	m.openGauge.Inc()
}

func (m *MessagingMonitor) ViewClosed() {
	atomic.AddInt64(&m.openViews, -1)
	m.openGauge.Dec()
}

func (m *MessagingMonitor) Subscribed() {
	atomic.AddInt64(&m.subscribed, 1)
	m.subscribedGauge.Inc()
}

func (m *MessagingMonitor) Unsubscribed() {
	atomic.AddInt64(&m.subscribed, -1)
	m.subscribedGauge.Dec()
}

// RecordProcess stores the latest process sample.
func (m *MessagingMonitor) RecordProcess(rssBytes uint64, cpuPercent float64) {
	atomic.StoreUint64(&m.rssBytes, rssBytes)
	atomic.StoreUint64(&m.cpuPermille, uint64(cpuPercent*10))
	m.rssGauge.Set(float64(rssBytes))
	m.cpuGauge.Set(cpuPercent)
}

// GetLatest returns the current counters.
func (m *MessagingMonitor) GetLatest() MessagingStats {
	return MessagingStats{
		Sends:          atomic.LoadUint64(&m.sends),
		Confirmed:      atomic.LoadUint64(&m.confirmed),
		RolledBack:     atomic.LoadUint64(&m.rolledBack),
		Observed:       atomic.LoadUint64(&m.observed),
		Accepted:       atomic.LoadUint64(&m.accepted),
		Discarded:      atomic.LoadUint64(&m.discarded),
		HistoryLoads:   atomic.LoadUint64(&m.historyLoads),
		HistoryErrors:  atomic.LoadUint64(&m.historyErrors),
		PollFallbacks:  atomic.LoadUint64(&m.pollFallbacks),
		OpenViews:      atomic.LoadInt64(&m.openViews),
		SubscribedView: atomic.LoadInt64(&m.subscribed),
		RSSBytes:       atomic.LoadUint64(&m.rssBytes),
		CPUPercent:     float64(atomic.LoadUint64(&m.cpuPermille)) / 10,
	}
}
