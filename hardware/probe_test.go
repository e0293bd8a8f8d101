package hardware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSystem struct {
	model    string
	total    uint64
	used     uint64
	load     float64
	modelErr error
	memErr   error
	calls    int
}

func (f *fakeSystem) CPUModel(context.Context) (string, error) {
	f.calls++
	return f.model, f.modelErr
}

func (f *fakeSystem) Memory(context.Context) (uint64, uint64, error) {
	return f.total, f.used, f.memErr
}

func (f *fakeSystem) CPUPercent(context.Context) (float64, error) {
	return f.load, nil
}

type fakeRunner struct {
	out    string
	err    error
	script string
}

func (f *fakeRunner) RunScript(_ context.Context, script string) (string, error) {
	f.script = script
	return f.out, f.err
}

func newTestProbe(sys System, runner ScriptRunner, goos string) *Probe {
	return &Probe{runner: runner, system: sys, goos: goos}
}

func TestInfoWindows(t *testing.T) {
	sys := &fakeSystem{model: "AMD Ryzen AI 9 HX 370", total: 32 << 30}
	runner := &fakeRunner{out: "device|NPU Compute Accelerator Device|32.0.203.258\r\n"}
	p := newTestProbe(sys, runner, "windows")

	info := p.Info(context.Background(), false)
	assert.Equal(t, Info{
		CPU:               "AMD Ryzen AI 9 HX 370",
		RAM:               "32.0 GB",
		RAMTotalBytes:     32 << 30,
		SharedMemory:      "16.0 GB (Max)",
		SharedMemoryBytes: 16 << 30,
		NPUName:           "NPU Compute Accelerator Device",
		NPUDriver:         "32.0.203.258",
	}, info)
	assert.Contains(t, runner.script, "Win32_PnPSignedDriver")
}

func TestInfoCaching(t *testing.T) {
	sys := &fakeSystem{model: "cpu", total: 8 << 30}
	p := newTestProbe(sys, &fakeRunner{}, "linux")

	p.Info(context.Background(), false)
	p.Info(context.Background(), false)
	assert.Equal(t, 1, sys.calls)

	sys.model = "faster cpu"
	assert.Equal(t, "faster cpu", p.Info(context.Background(), true).CPU)
	assert.Equal(t, 2, sys.calls)
}

func TestInfoFailures(t *testing.T) {
	tests := []struct {
		name   string
		sys    *fakeSystem
		runner *fakeRunner
	}{
		{name: "cpu", sys: &fakeSystem{modelErr: errors.New("no cpu")}, runner: &fakeRunner{}},
		{name: "memory", sys: &fakeSystem{model: "cpu", memErr: errors.New("no mem")}, runner: &fakeRunner{}},
		{name: "script", sys: &fakeSystem{model: "cpu", total: 1 << 30}, runner: &fakeRunner{err: errors.New("powershell missing")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProbe(tt.sys, tt.runner, "windows")
			assert.Equal(t, UnknownInfo(), p.Info(context.Background(), false))
		})
	}
}

func TestInfoWithoutScript(t *testing.T) {
	p := newTestProbe(&fakeSystem{model: "M3", total: 16 << 30}, nil, "darwin")
	info := p.Info(context.Background(), false)
	assert.Equal(t, NotDetected, info.NPUName)
	assert.Equal(t, NoDriver, info.NPUDriver)
	assert.Equal(t, "16.0 GB", info.RAM)
}

func TestParseNPU(t *testing.T) {
	tests := []struct {
		name       string
		out        string
		wantName   string
		wantDriver string
	}{
		{name: "nothing", out: "", wantName: NotDetected, wantDriver: NoDriver},
		{
			name:     "lspci with unrelated devices",
			out:      "device|00:02.0 VGA compatible controller: Intel Corporation Device\ndevice|00:0b.0 Processing accelerators: Intel AI Boost\n",
			wantName: "Intel AI Boost", wantDriver: NoDriver,
		},
		{
			name:     "lspci plus accel driver",
			out:      "device|c4:00.1 Signal processing controller: AMD Ryzen AI NPU\naccel|amdxdna|2.19\n",
			wantName: "AMD Ryzen AI NPU", wantDriver: "amdxdna 2.19",
		},
		{
			name:     "accel only",
			out:      "device|00:02.0 VGA compatible controller: Intel\naccel|intel_vpu|\n",
			wantName: "NPU (intel_vpu)", wantDriver: "intel_vpu",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, driver := parseNPU(tt.out)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantDriver, driver)
		})
	}
}

func TestStats(t *testing.T) {
	p := newTestProbe(&fakeSystem{total: 16 << 30, used: 4 << 30, load: 12.3456}, nil, "linux")
	s := p.Stats(context.Background())
	assert.Equal(t, 16384.0, s.Memory.Total)
	assert.Equal(t, 4096.0, s.Memory.Used)
	assert.Equal(t, 25.0, s.Memory.Percentage)
	assert.Equal(t, 12.35, s.CPU.Usage)
	assert.Zero(t, s.NPU.Usage)
	assert.Zero(t, s.NPU.Temperature)
	assert.Zero(t, s.NPU.Power)

	failing := newTestProbe(&fakeSystem{memErr: errors.New("boom")}, nil, "linux")
	assert.Zero(t, failing.Stats(context.Background()).Memory.Total)
}

func TestSample(t *testing.T) {
	p := newTestProbe(&fakeSystem{total: 1 << 30, used: 1 << 29, load: 5}, nil, "linux")
	ctx, cancel := context.WithCancel(context.Background())

	ch := p.Sample(ctx, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		select {
		case s := <-ch:
			assert.Equal(t, 50.0, s.Memory.Percentage)
		case <-time.After(2 * time.Second):
			t.Fatal("no sample received")
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}
