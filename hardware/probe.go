// Package hardware describes the machine the runtime runs on: processor,
// memory and NPU, plus live utilisation samples.
package hardware

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/flmcompanion/flmcompanion/logging"
)

const (
	Unknown     = "Unknown"
	NotDetected = "Not detected"
	NoDriver    = "N/A"

	// DefaultInterval is how often the sampler reports stats.
	DefaultInterval = 2 * time.Second
)

// NPUPattern selects the NPU among the devices a platform script reports.
var NPUPattern = regexp.MustCompile(`NPU Compute Accelerator Device|Ryzen AI|Intel AI Boost`)

// ScriptRunner runs a script with the platform shell.
type ScriptRunner interface {
	RunScript(ctx context.Context, script string) (string, error)
}

type Info struct {
	CPU               string `json:"cpu"`
	RAM               string `json:"ram"`
	RAMTotalBytes     uint64 `json:"ramTotalBytes"`
	SharedMemory      string `json:"sharedMemory"`
	SharedMemoryBytes uint64 `json:"sharedMemoryBytes"`
	NPUName           string `json:"npuName"`
	NPUDriver         string `json:"npuDriver"`
}

// UnknownInfo is returned when the hardware could not be probed.
func UnknownInfo() Info {
	return Info{CPU: Unknown, RAM: Unknown, SharedMemory: Unknown, NPUName: Unknown, NPUDriver: Unknown}
}

// Stats is one utilisation sample. Memory figures are in MB. NPU figures
// are always zero until the runtime exposes them.
type Stats struct {
	Memory struct {
		Used       float64 `json:"used"`
		Total      float64 `json:"total"`
		Percentage float64 `json:"percentage"`
	} `json:"memory"`
	CPU struct {
		Usage float64 `json:"usage"`
	} `json:"cpu"`
	NPU struct {
		Usage       float64 `json:"usage"`
		Temperature float64 `json:"temperature"`
		Power       float64 `json:"power"`
	} `json:"npu"`
}

// Probe gathers hardware information, caching it until a forced refresh.
type Probe struct {
	runner ScriptRunner
	system System
	goos   string

	mu     sync.Mutex
	cached *Info
}

func NewProbe(runner ScriptRunner) *Probe {
	return &Probe{runner: runner, system: HostSystem{}, goos: runtime.GOOS}
}

// Info returns the hardware description. Any failure yields UnknownInfo.
func (p *Probe) Info(ctx context.Context, force bool) Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && !force {
		return *p.cached
	}

	info, err := p.probe(ctx)
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to get hardware info: %v", err)
		info = UnknownInfo()
	}
	p.cached = &info
	return info
}

func (p *Probe) probe(ctx context.Context) (Info, error) {
	model, err := p.system.CPUModel(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("cpu: %w", err)
	}
	total, _, err := p.system.Memory(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("memory: %w", err)
	}
	name, driver, err := p.npu(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("npu: %w", err)
	}

	shared := total / 2
	return Info{
		CPU:               model,
		RAM:               fmt.Sprintf("%.1f GB", gigabytes(total)),
		RAMTotalBytes:     total,
		SharedMemory:      fmt.Sprintf("%.1f GB (Max)", gigabytes(shared)),
		SharedMemoryBytes: shared,
		NPUName:           name,
		NPUDriver:         driver,
	}, nil
}

func (p *Probe) npu(ctx context.Context) (string, string, error) {
	script := npuScript(p.goos)
	if script == "" || p.runner == nil {
		return NotDetected, NoDriver, nil
	}
	out, err := p.runner.RunScript(ctx, script)
	if err != nil {
		return "", "", err
	}
	name, driver := parseNPU(out)
	return name, driver, nil
}

// Stats samples memory and processor load. Failures give zero values.
func (p *Probe) Stats(ctx context.Context) Stats {
	var s Stats
	total, used, err := p.system.Memory(ctx)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Failed to read memory stats: %v", err)
	} else if total > 0 {
		s.Memory.Total = round2(megabytes(total))
		s.Memory.Used = round2(megabytes(used))
		s.Memory.Percentage = round2(float64(used) / float64(total) * 100)
	}
	if load, err := p.system.CPUPercent(ctx); err != nil {
		logging.WarnLogger.Warn().Msgf("Failed to read cpu load: %v", err)
	} else {
		s.CPU.Usage = round2(load)
	}
	return s
}

// Sample sends Stats right away and then on every tick until ctx is done,
// when the channel is closed. Slow readers miss samples rather than block.
func (p *Probe) Sample(ctx context.Context, interval time.Duration) <-chan Stats {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ch := make(chan Stats, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case ch <- p.Stats(ctx):
			case <-ctx.Done():
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

func gigabytes(b uint64) float64 { return float64(b) / (1 << 30) }
func megabytes(b uint64) float64 { return float64(b) / (1 << 20) }
func round2(f float64) float64   { return math.Round(f*100) / 100 }

func npuScript(goos string) string {
	switch goos {
	case "windows":
		return windowsNPUScript
	case "linux":
		return linuxNPUScript
	}
	return ""
}

const windowsNPUScript = `
$d = Get-CimInstance Win32_PnPSignedDriver | Where-Object { $_.DeviceName -match 'NPU Compute Accelerator Device|Ryzen AI|Intel AI Boost' } | Select-Object -First 1
if ($d) { Write-Output ("device|" + $d.DeviceName + "|" + $d.DriverVersion) }
`

const linuxNPUScript = `
lspci 2>/dev/null | sed 's/^/device|/'
for d in /sys/class/accel/accel*; do
  [ -e "$d" ] || continue
  drv=$(basename "$(readlink -f "$d/device/driver" 2>/dev/null)" 2>/dev/null)
  ver=$(cat "/sys/module/$drv/version" 2>/dev/null)
  echo "accel|$drv|$ver"
done
true
`

// parseNPU reads "device|name|driver" and "accel|driver|version" lines.
func parseNPU(out string) (name, driver string) {
	name, driver = NotDetected, NoDriver
	var accelDriver string
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) < 2 {
			continue
		}
		switch parts[0] {
		case "device":
			if name != NotDetected || !NPUPattern.MatchString(parts[1]) {
				continue
			}
			name = cleanDeviceName(parts[1])
			if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
				driver = strings.TrimSpace(parts[2])
			}
		case "accel":
			if accelDriver != "" || strings.TrimSpace(parts[1]) == "" {
				continue
			}
			accelDriver = strings.TrimSpace(parts[1])
			if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
				accelDriver += " " + strings.TrimSpace(parts[2])
			}
		}
	}
	if accelDriver != "" {
		if driver == NoDriver {
			driver = accelDriver
		}
		if name == NotDetected {
			name = "NPU (" + strings.Fields(accelDriver)[0] + ")"
		}
	}
	return name, driver
}

var pciPrefix = regexp.MustCompile(`^[0-9a-fA-F:.]+\s+[^:]+:\s+`)

// cleanDeviceName drops the bus address and class lspci prints before the device.
func cleanDeviceName(s string) string {
	return strings.TrimSpace(pciPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
}
