/*
Package pathguard normalizes and filters the relative paths an update may
touch.

Every candidate path crosses this package before the engine stages, swaps,
or deletes anything under it. Normalize enforces the structural rules:

  - no absolute paths
  - no empty, ".", or ".." segments
  - no backslashes or drive-colon smuggling

Permitted then applies the configured allow/ignore lists: when an allow
list is present a path must equal an entry or sit under one treated as a
directory prefix; the ignore list excludes by the same matching rule and
is applied second.

WithinRoot is the defense-in-depth check used for stage and backup
destinations — even a path that slipped past normalization cannot cause a
write outside the staging root.

All rejections carry errdefs.ErrPath, which the engine maps to the
aborted-validation outcome.
*/
package pathguard
