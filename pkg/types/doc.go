/*
Package types defines the shared data model for Molt's update engine.

The types package is a leaf dependency holding the structures passed between
components: resolved targets, tree entries, the installed-version record, and
the engine outcome codes. Keeping them here avoids import cycles between the
resolver, staging, swap, and engine packages.

# Core Types

  - Channel: stable (releases + signed manifest) or developer (branch tip)
  - Target: resolved {ref, commit, mode, release} descriptor
  - TreeEntry: one blob from a recursive tree listing, with its identity SHA
  - VersionRecord: the persisted {ref, commit} installed-version state
  - Outcome: engine-level result (updated, no-change, aborted-*, rolled-back)
  - AttemptRecord: one update attempt as stored in the history log

# Version Record Semantics

VersionRecord is the authoritative commit marker for a swap. It is written
atomically, after every file rename and a filesystem sync, and only once per
successful swap. After a crash:

  - record absent, backup empty: previous version intact
  - record absent, backup non-empty: boot recovery restores previous version
  - record present: every file of the recorded version is durable
*/
package types
