package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	hostRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletvisor",
		Subsystem: "host",
		Name:      "process_rss_bytes",
		Help:      "Resident memory of the walletvisor daemon.",
	})
	hostCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletvisor",
		Subsystem: "host",
		Name:      "process_cpu_percent",
		Help:      "CPU usage of the walletvisor daemon since the previous sample.",
	})
	hostDiskFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletvisor",
		Subsystem: "host",
		Name:      "data_dir_free_bytes",
		Help:      "Free space on the filesystem holding the data directory.",
	})
)

// HostSample is one reading of the daemon's own footprint.
type HostSample struct {
	RSS        uint64
	CPUPercent float64
	DiskFree   uint64
	DiskTotal  uint64
}

// Sampler reads host statistics with gopsutil.
type Sampler struct {
	proc    *process.Process
	dataDir string
}

// NewSampler watches the current process and the filesystem of dataDir.
func NewSampler(ctx context.Context, dataDir string) (*Sampler, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) // #nosec G115 pids fit in int32
	if err != nil {
		return nil, fmt.Errorf("open self process: %w", err)
	}
	return &Sampler{proc: p, dataDir: dataDir}, nil
}

// Sample takes a reading and updates the host gauges.
func (s *Sampler) Sample(ctx context.Context) (HostSample, error) {
	var out HostSample
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("memory info: %w", err)
	}
	out.RSS = mem.RSS
	if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		out.CPUPercent = cpu
	}
	if s.dataDir != "" {
		u, err := disk.UsageWithContext(ctx, s.dataDir)
		if err != nil {
			return out, fmt.Errorf("disk usage %s: %w", s.dataDir, err)
		}
		out.DiskFree, out.DiskTotal = u.Free, u.Total
	}
	if regOK.Load() {
		hostRSS.Set(float64(out.RSS))
		hostCPU.Set(out.CPUPercent)
		if s.dataDir != "" {
			hostDiskFree.Set(float64(out.DiskFree))
		}
	}
	return out, nil
}

// Run samples every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.Sample(ctx); err != nil && ctx.Err() == nil {
			log.Warn("host sample failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
