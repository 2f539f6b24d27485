package monitor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler produces a raw memory snapshot. The Level field is filled in by
// the Monitor, not the sampler.
type Sampler interface {
	Sample(ctx context.Context) (Statistics, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Statistics, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (Statistics, error) { return f(ctx) }

// systemSampler reads system memory via gopsutil and this process's RSS
// for the app usage figure.
type systemSampler struct {
	proc *process.Process
}

// NewSystemSampler creates a sampler for the current process.
func NewSystemSampler() (Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &systemSampler{proc: proc}, nil
}

// Sample gathers a memory snapshot.
func (s *systemSampler) Sample(ctx context.Context) (Statistics, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Statistics{}, err
	}

	var app uint64
	if info, err := s.proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		app = info.RSS
	}

	return Statistics{
		TotalBytes: vm.Total,
		UsedBytes:  vm.Used,
		FreeBytes:  vm.Available,
		AppBytes:   app,
		Timestamp:  time.Now(),
	}, nil
}
