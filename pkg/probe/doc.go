/*
Package probe gates large operations on resource availability.

Edge devices running the engine have around 200 KB of heap and a small
flash filesystem; a failed mid-update allocation or a full disk during a
swap is worse than never starting. The probe answers two questions before
the engine commits to an update:

  - is there enough free storage for stage and backup copies to exist
    at the same time? (RequireStorage: free >= 2 x required)
  - are memory, battery, and CPU above the configured minimums?
    (CheckThresholds; unknown readings skip their gate)

AdaptiveChunk sizes the streaming buffer from free memory — the preferred
chunk size capped at a quarter of the free heap, clamped to [256, 4096]
bytes — so constrained devices trade throughput for headroom
automatically.
*/
package probe
