package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMessagingMonitor_Counts_Observations_By_Verdict(t *testing.T) {
	req := require.New(t)
	monitor := NewMessagingMonitor(prometheus.NewRegistry())

	monitor.IncrObservation(VerdictAccepted)
	monitor.IncrObservation(VerdictDuplicate)
	monitor.IncrObservation(VerdictDuplicate)
	monitor.IncrObservation(VerdictForeign)

	stats := monitor.GetLatest()
	req.Equal(uint64(4), stats.Observed)
	req.Equal(uint64(1), stats.Accepted)
	req.Equal(uint64(3), stats.Discarded)
	req.Equal(2.0, testutil.ToFloat64(monitor.observationTotal.WithLabelValues(VerdictDuplicate)))
}

func TestMessagingMonitor_Send_Lifecycle(t *testing.T) {
	req := require.New(t)
	monitor := NewMessagingMonitor(prometheus.NewRegistry())

	monitor.IncrSend()
	monitor.IncrSend()
	monitor.IncrConfirmed()
	monitor.IncrRolledBack()
	monitor.IncrHistory(nil)
	monitor.IncrHistory(errors.New("boom"))

	stats := monitor.GetLatest()
	req.Equal(uint64(2), stats.Sends)
	req.Equal(uint64(1), stats.Confirmed)
	req.Equal(uint64(1), stats.RolledBack)
	req.Equal(uint64(1), stats.HistoryLoads)
	req.Equal(uint64(1), stats.HistoryErrors)
	req.Equal(1.0, testutil.ToFloat64(monitor.sendTotal.WithLabelValues("rolled_back")))
}

func TestMessagingMonitor_Gauges_Go_Back_To_Zero(t *testing.T) {
	req := require.New(t)
	monitor := NewMessagingMonitor(prometheus.NewRegistry())

	monitor.ViewOpened()
	monitor.Subscribed()
	monitor.Unsubscribed()
	monitor.ViewClosed()

	req.Zero(monitor.GetLatest().OpenViews)
	req.Zero(monitor.GetLatest().SubscribedView)
	req.Zero(testutil.ToFloat64(monitor.openGauge))
}

func TestNewMessagingMonitor_Twice_On_Same_Registry_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMessagingMonitor(reg)
	require.Panics(t, func() { NewMessagingMonitor(reg) })
}

func TestMessagingMonitor_Records_Process_Sample(t *testing.T) {
	req := require.New(t)
	monitor := NewMessagingMonitor(prometheus.NewRegistry())

	monitor.RecordProcess(64<<20, 12.5)

	stats := monitor.GetLatest()
	req.Equal(uint64(64<<20), stats.RSSBytes)
	req.InDelta(12.5, stats.CPUPercent, 0.01)
	req.Equal(12.5, testutil.ToFloat64(monitor.cpuGauge))
}
