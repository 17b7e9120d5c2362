package policy

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
)

// Usage holds resource usage ratios in [0, 1]. Zero means not sampled.
type Usage struct {
	Memory  float64 `json:"memory"`
	CPU     float64 `json:"cpu"`
	Storage float64 `json:"storage"`
}

// ResourceSampler measures current resource usage.
type ResourceSampler interface {
	Sample(ctx context.Context) (Usage, error)
}

// SamplerFunc adapts a function to ResourceSampler.
type SamplerFunc func(ctx context.Context) (Usage, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (Usage, error) { return f(ctx) }

// RuntimeSampler reports the Go runtime's memory in use against a limit. When
// MemoryLimit is zero the runtime soft memory limit (GOMEMLIMIT) is used; with
// no limit set memory is reported as not sampled. CPU and storage are never
// sampled.
type RuntimeSampler struct {
	MemoryLimit uint64
}

// Sample implements ResourceSampler.
func (s RuntimeSampler) Sample(context.Context) (Usage, error) {
	limit := s.MemoryLimit
	if limit == 0 {
		soft := debug.SetMemoryLimit(-1)
		if soft <= 0 || soft == math.MaxInt64 {
			return Usage{}, nil
		}
		limit = uint64(soft)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	inUse := ms.Sys - ms.HeapReleased
	return Usage{Memory: math.Min(float64(inUse)/float64(limit), 1)}, nil
}

// CheckResources samples usage and classifies every ratio above its threshold as
// resource pressure, raising the degradation level once per constrained
// resource.
func (p *Policy) CheckResources(ctx context.Context) ([]Decision, error) {
	usage, err := p.sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample resources: %w", err)
	}

	var decisions []Decision
	check := func(r Resource, ratio, threshold float64) {
		if ratio <= threshold {
			return
		}
		d := p.Classify(&ResourceError{Resource: r, Ratio: ratio}, ErrorContext{Key: "resource:" + string(r)})
		decisions = append(decisions, d)
	}
	check(ResourceMemory, usage.Memory, p.cfg.MemoryThreshold)
	check(ResourceCPU, usage.CPU, p.cfg.CPUThreshold)
	check(ResourceStorage, usage.Storage, p.cfg.StorageThreshold)
	return decisions, nil
}

// Cleanup prunes stale error records and samples resources. It is the job the
// health monitor runs on its cleanup interval.
func (p *Policy) Cleanup(ctx context.Context) {
	if n := p.Prune(0); n > 0 {
		p.logger.Debug("Pruned error records", "count", n)
	}
	if _, err := p.CheckResources(ctx); err != nil {
		p.logger.Warn("Resource check failed", "error", err)
	}
}
