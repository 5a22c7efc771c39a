/*
Package config loads and validates Molt's per-run configuration.

A device carries one config file at its root describing the repository it
updates from, the channel it follows, path filters, retry policy, resource
thresholds, and swap layout. The config is immutable for the duration of an
update attempt.

# File Formats

Load selects the parser by extension:

  - .yaml / .yml: parsed with yaml.v3
  - anything else: parsed as JSON with comments and trailing commas
    permitted (hujson), so hand-maintained device configs can be annotated

# Option Groups

  - Repository: owner, repo, token, user_agent
  - Channel: channel (stable/developer), branch
  - Filters: allow, ignore (path prefix lists)
  - I/O: chunk, http_retries, backoff_sec, max_backoff_sec, timeouts
  - Trust: manifest_key (HMAC secret), allow_unverified
  - Guards: max_tree_files, max_tree_size_kb, min_free_mem,
    min_free_storage, min_battery_pct, min_cpu_mhz
  - Behavior: force, delete_patterns, enable_delta_updates, reset_mode
  - Layout: stage_dir (.ota_stage), backup_dir (.ota_backup)

# Validation

Validate rejects missing owner/repo, unknown channel or reset modes,
identical stage/backup directories, and well-known placeholder values
(YOUR_OWNER, CHANGEME, ...) that ship in example configs. All validation
failures carry errdefs.ErrConfig.
*/
package config
