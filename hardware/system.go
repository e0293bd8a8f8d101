package hardware

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// System reads processor and memory figures from the host.
type System interface {
	CPUModel(ctx context.Context) (string, error)
	Memory(ctx context.Context) (total, used uint64, err error)
	CPUPercent(ctx context.Context) (float64, error)
}

// HostSystem implements System with gopsutil.
type HostSystem struct{}

func (HostSystem) CPUModel(ctx context.Context) (string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 || strings.TrimSpace(infos[0].ModelName) == "" {
		return "", fmt.Errorf("no processor information")
	}
	return strings.TrimSpace(infos[0].ModelName), nil
}

func (HostSystem) Memory(ctx context.Context) (uint64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Used, nil
}

// CPUPercent returns the load since the previous call.
func (HostSystem) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("no cpu load sample")
	}
	return pct[0], nil
}
