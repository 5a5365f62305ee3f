package workers

import (
	"business-connect/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the client reports on the gRPC health service.
const ServiceName = "businessconnect.Messaging"

// Probe reports whether the messaging core still answers.
type Probe func(ctx context.Context) error

// HeartbeatWorker samples the client process and publishes its serving status.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	monitor  *observability.MessagingMonitor
	health   *health.Server
	probe    Probe
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration,
	monitor *observability.MessagingMonitor, health *health.Server, probe Probe) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:      log,
		interval: interval,
		monitor:  monitor,
		health:   health,
		probe:    probe,
	}
}

// Run beats every interval until ctx is done, then reports NOT_SERVING.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.beat(ctx, p)
	for {
		select {
		case <-ctx.Done():
			w.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		case <-ticker.C:
			w.beat(ctx, p)
		}
	}
}

func (w *HeartbeatWorker) beat(ctx context.Context, p *process.Process) {
	status := healthpb.HealthCheckResponse_SERVING
	probeCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	if err := w.probe(probeCtx); err != nil {
		w.log.Warn("Messaging core not answering", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus(ServiceName, status)

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Debug("Failed to collect self stats", "error", err)
		return
	}
	w.monitor.RecordProcess(rss, cpu)
	stats := w.monitor.GetLatest()
	w.log.Debug("Heartbeat", "status", status.String(), "rss", rss, "cpu", cpu,
		"open_views", stats.OpenViews, "subscribed_views", stats.SubscribedView)
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
