package probe

import (
	"github.com/cuemby/molt/pkg/device"
	"github.com/cuemby/molt/pkg/errdefs"
)

// Chunk size bounds for adaptive streaming
const (
	MinChunk = 256
	MaxChunk = 4096
)

// Probe reports resource availability before large operations
type Probe struct {
	caps device.Capabilities
}

// New creates a Probe over the injected capabilities
func New(caps device.Capabilities) *Probe {
	return &Probe{caps: caps}
}

// FreeMem returns free heap bytes, or -1 if the platform cannot report it
func (p *Probe) FreeMem() int64 {
	return p.caps.MemFree()
}

// FreeStorage returns free filesystem bytes under root
func (p *Probe) FreeStorage(root string) (int64, error) {
	free, err := p.caps.StorageFree(root)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	return free, nil
}

// AdaptiveChunk picks a streaming chunk size: the preferred size capped
// at a quarter of free heap, then clamped to [256, 4096]. Platforms that
// cannot report free memory get the preferred size clamped to the same
// bounds.
func (p *Probe) AdaptiveChunk(preferred int) int {
	free := p.caps.MemFree()
	chunk := preferred
	if free >= 0 {
		budget := int(free / 4)
		if chunk > budget {
			chunk = budget
		}
	}
	if chunk < MinChunk {
		chunk = MinChunk
	}
	if chunk > MaxChunk {
		chunk = MaxChunk
	}
	return chunk
}

// RequireStorage verifies that at least 2x requiredBytes are free under
// root, covering stage and backup copies existing simultaneously.
func (p *Probe) RequireStorage(root string, requiredBytes int64) error {
	free, err := p.FreeStorage(root)
	if err != nil {
		return err
	}
	need := 2 * requiredBytes
	if free < need {
		return errdefs.Wrapf(errdefs.ErrResource,
			"insufficient storage: need %d bytes free, have %d", need, free)
	}
	return nil
}

// CheckThresholds verifies the configured minimums for memory, battery,
// and CPU. Readings the platform cannot provide are skipped.
func (p *Probe) CheckThresholds(minFreeMem int64, minBatteryPct, minCPUMHz int) error {
	if minFreeMem > 0 {
		if free := p.caps.MemFree(); free >= 0 && free < minFreeMem {
			return errdefs.Wrapf(errdefs.ErrResource,
				"free memory %d below minimum %d", free, minFreeMem)
		}
	}
	if minBatteryPct > 0 {
		if pct := p.caps.BatteryPct(); pct >= 0 && pct < minBatteryPct {
			return errdefs.Wrapf(errdefs.ErrResource,
				"battery %d%% below minimum %d%%", pct, minBatteryPct)
		}
	}
	if minCPUMHz > 0 {
		if mhz := p.caps.CPUMHz(); mhz > 0 && mhz < minCPUMHz {
			return errdefs.Wrapf(errdefs.ErrResource,
				"cpu %dMHz below minimum %dMHz", mhz, minCPUMHz)
		}
	}
	return nil
}
