/*
Package metrics defines Prometheus collectors for the update engine.

Counters are package-level and incremented inline by the components that
own the events: fetch counts transferred bytes, staging counts verified
and skipped files, the swap orchestrator counts finalizations, rollbacks,
and boot recoveries, and the engine stamps each attempt with its outcome.

On-device runs typically never expose these; host-side and soak-test
runs mount Handler on whatever listener suits them (the CLI's
--metrics-addr flag does exactly that). Collection is cheap enough that
the counters are always maintained.

# Metrics

  - molt_updates_total{outcome}: attempts by outcome code
  - molt_update_duration_seconds: attempt wall-clock histogram
  - molt_bytes_fetched_total: bytes pulled from the repository host
  - molt_delta_bytes_saved_total: transfer bytes avoided via deltas
  - molt_files_staged_total / molt_files_skipped_total
  - molt_swaps_total / molt_rollbacks_total / molt_boot_recoveries_total
  - molt_staging_failures_total
*/
package metrics
