package device

import (
	"os"
	"syscall"

	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/types"
)

// Capabilities is the small record of device side effects the engine
// consumes. Hosts without the underlying hardware inject no-op or
// approximated implementations.
type Capabilities interface {
	// FeedWatchdog reassures the external watchdog timer. Called during
	// every retry sleep and download chunk.
	FeedWatchdog()

	// LEDPattern displays a named activity pattern (best effort)
	LEDPattern(name string)

	// CPUMHz returns the current CPU clock, or 0 if unknown
	CPUMHz() int

	// MemFree returns free heap bytes, or -1 if unknown
	MemFree() int64

	// StorageFree returns free filesystem bytes under root
	StorageFree(root string) (int64, error)

	// BatteryPct returns the battery charge 0-100, or -1 if unpowered
	// by battery or unknown
	BatteryPct() int
}

// Resetter restarts the device after a finalized swap
type Resetter interface {
	Reset(mode types.ResetMode) error
}

// Host implements Capabilities for a POSIX host filesystem. Watchdog and
// LED are no-ops; memory and battery report unknown.
type Host struct{}

// NewHost creates host-side capabilities
func NewHost() *Host {
	return &Host{}
}

func (h *Host) FeedWatchdog() {}

func (h *Host) LEDPattern(name string) {}

func (h *Host) CPUMHz() int { return 0 }

func (h *Host) MemFree() int64 { return -1 }

// StorageFree reports free bytes on the filesystem holding root
func (h *Host) StorageFree(root string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(root, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

func (h *Host) BatteryPct() int { return -1 }

// ProcessResetter implements Resetter by exiting the process. On a real
// device the supervisor or hardware reset takes over; in soft mode the
// surrounding service manager restarts the process.
type ProcessResetter struct{}

// NewProcessResetter creates the default reset facade
func NewProcessResetter() *ProcessResetter {
	return &ProcessResetter{}
}

// Reset performs the configured reset. ResetNone logs and returns.
func (r *ProcessResetter) Reset(mode types.ResetMode) error {
	logger := log.WithComponent("device")
	switch mode {
	case types.ResetHard:
		logger.Info().Msg("Hard reset requested, exiting")
		os.Exit(0)
	case types.ResetSoft:
		logger.Info().Msg("Soft reset requested, exiting")
		os.Exit(0)
	case types.ResetNone:
		logger.Info().Msg("Reset suppressed by configuration")
	}
	return nil
}
