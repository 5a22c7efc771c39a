/*
Package device defines the capabilities record and reset facade injected
into the update engine.

The engine never reaches for hardware globals. Everything with a side
effect outside the filesystem — watchdog feeding, LED activity patterns,
battery and CPU readings, the post-swap reset — arrives through the two
small interfaces here, so tests and host-side runs inject no-op
implementations.

# Capabilities

  - FeedWatchdog: called during every retry sleep and download chunk so a
    slow transfer never trips the external watchdog
  - LEDPattern: best-effort activity indication
  - CPUMHz / MemFree / BatteryPct: readings for the engine's resource
    gate; unknown values are 0 or -1 and the corresponding gate is skipped
  - StorageFree: free filesystem bytes for the pre-flight storage gate

Host is the POSIX implementation used by the CLI: statfs-backed storage
readings, everything hardware-specific a no-op.

# Reset

ProcessResetter implements the hard/soft/none reset modes by exiting the
process (the supervisor owns the actual restart). A device port would
replace it with the platform reset primitive.
*/
package device
