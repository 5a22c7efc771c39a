/*
Package swap promotes staged artifacts into the live tree atomically,
with rollback on any failure and recovery after arbitrary power loss.

# Swap Protocol

For each staged file, in staging-walk order:

 1. if the live path exists, rename it into the backup directory and
    fsync; record a replace operation
 2. rename the staged file into place and fsync; for a previously
    absent path, record a new operation

Manifest deletions and the optional stale-file sweep move live files
into backup and record delete operations. The operation log uses three
explicit variants — new{target}, replace{target, backup},
delete{backup} — never inferring the kind from which fields are set.

Finalization syncs the filesystem, atomically writes the
installed-version record, and syncs again. Only then is the swap
observable as committed; stage and backup are cleared afterwards.

# Rollback

Any failure before finalization replays the log in reverse:

  - new: remove the target
  - replace: remove the target if present, rename the backup back
  - delete: rename the backup back

Rollback-step failures are logged and written to ota_error.json but
never abort the remaining entries; the original swap error is the one
the caller sees.

# Boot Recovery

Construction runs Recover. A non-empty backup directory marks an
interrupted swap: every backed-up file is restored over its live path
(a partial live file is overwritten), syncing after each restore, then
backup is emptied. Stray .tmp files under the staging directory are
removed and staging is emptied. Restoration errors go to ota_error.json
and do not prevent the engine from starting a new attempt.

# Crash States

The version record write is strictly ordered after every rename and a
sync, which gives three recognizable post-crash states:

  - record absent, backup empty: previous version intact
  - record absent, backup non-empty: recovery restores the previous
    version
  - record present: every file of the new version is durable
*/
package swap
