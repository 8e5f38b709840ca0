// Package monitor samples system and GPU memory in the worker process and
// logs warnings when usage crosses configured ratios. It observes only;
// nothing here throttles or kills work.
package monitor

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval  = 30 * time.Second
	defaultWarnRatio = 0.9
)

// Options configures a Monitor. Zero values fall back to defaults.
type Options struct {
	Interval     time.Duration
	RAMWarnRatio float64
	GPUWarnRatio float64
}

// GPUMemoryUsage is the memory usage of a single GPU.
type GPUMemoryUsage struct {
	Index   int
	UsedMB  int
	TotalMB int
}

// Utilization returns the used fraction, 0 when totals are unknown.
func (g GPUMemoryUsage) Utilization() float64 {
	if g.TotalMB == 0 {
		return 0
	}
	return float64(g.UsedMB) / float64(g.TotalMB)
}

type Monitor struct {
	opts      Options
	nvidiaSMI string
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RAMWarnRatio <= 0 {
		opts.RAMWarnRatio = defaultWarnRatio
	}
	if opts.GPUWarnRatio <= 0 {
		opts.GPUWarnRatio = defaultWarnRatio
	}
	// GPU sampling is best-effort: no nvidia-smi on the host means no GPU
	// readings, not an error.
	smi, err := exec.LookPath("nvidia-smi")
	if err != nil {
		smi = ""
	}
	return &Monitor{opts: opts, nvidiaSMI: smi}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"interval":       m.opts.Interval,
		"ram_warn_ratio": m.opts.RAMWarnRatio,
		"gpu_warn_ratio": m.opts.GPUWarnRatio,
	}).Info("memory monitor started")

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("memory monitor stopped")
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	if vm, err := mem.VirtualMemory(); err != nil {
		log.WithError(err).Debug("unable to read system memory usage")
	} else {
		ratio := vm.UsedPercent / 100
		entry := log.WithFields(log.Fields{
			"ram_used_mb":  vm.Used / 1024 / 1024,
			"ram_total_mb": vm.Total / 1024 / 1024,
		})
		if ratio >= m.opts.RAMWarnRatio {
			entry.Warnf("system RAM usage at %.0f%%", vm.UsedPercent)
		} else {
			entry.Debugf("system RAM usage at %.0f%%", vm.UsedPercent)
		}
	}

	for _, gpu := range m.readGPUUsage() {
		entry := log.WithFields(log.Fields{
			"gpu_index":    gpu.Index,
			"gpu_used_mb":  gpu.UsedMB,
			"gpu_total_mb": gpu.TotalMB,
		})
		if gpu.Utilization() >= m.opts.GPUWarnRatio {
			entry.Warnf("GPU memory usage at %.0f%%", gpu.Utilization()*100)
		} else {
			entry.Debugf("GPU memory usage at %.0f%%", gpu.Utilization()*100)
		}
	}
}

// readGPUUsage shells out to nvidia-smi when present.
func (m *Monitor) readGPUUsage() []GPUMemoryUsage {
	if m.nvidiaSMI == "" {
		return nil
	}
	out, err := exec.Command(m.nvidiaSMI,
		"--query-gpu=index,memory.used,memory.total",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		log.WithError(err).Debug("nvidia-smi query failed")
		return nil
	}
	return ParseNvidiaSMIOutput(string(out))
}

// ParseNvidiaSMIOutput parses nvidia-smi csv,noheader,nounits output lines
// of the form "index, used_mb, total_mb". Malformed lines are skipped.
func ParseNvidiaSMIOutput(out string) []GPUMemoryUsage {
	var usages []GPUMemoryUsage
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		index, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		used, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
		total, err3 := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		usages = append(usages, GPUMemoryUsage{Index: index, UsedMB: used, TotalMB: total})
	}
	return usages
}
