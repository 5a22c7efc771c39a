/*
Package engine sequences a complete over-the-air update attempt.

The engine is the only component that sees the whole picture. It runs as
a single logical task — no parallel I/O, no worker pool — because the
target device cannot afford two simultaneous large allocations and the
crash-safety argument depends on a totally ordered sequence of
filesystem operations.

# State Machine

	Idle -> Connecting -> Resolving -> Checking -> Staging -> Swapping
	     -> Finalized -> Resetting

Failure in Staging or Swapping transitions to RolledBack; earlier
failures to Aborted. Both leave the device on its previous version.

# Decision Gates

  - resource gate: free memory, battery, and CPU above the configured
    minimums, else aborted-resource
  - identity gate: installed commit equals the target commit and force
    is off, outcome no-change without any transfer
  - pre-flight path gate: every candidate passes the path guard; a
    manifest entry that fails aborts the whole plan
  - pre-flight storage gate: free bytes >= 2x the total candidate size,
    so stage and backup can coexist

# Outcomes

	updated             swap finalized, version record written
	no-change           already at target, or nothing to install
	aborted-resource    a gate failed before staging
	aborted-validation  signature, hash, or path rejection; also a failure
	                    to connect, resolve the target, or fetch the plan
	rolled-back         a mid-swap failure was unwound

# Channels

Stable resolves the latest release; when the release carries a
manifest.json asset the signed-manifest protocol drives staging,
otherwise the commit tree does. Developer always uses the tree with
git blob identities. Both share the same staging and swap machinery.

The post-update hook identifier from a manifest is handed to the
injected HookLoader after finalization; the engine never executes hook
code, and a hook failure never unwinds a committed swap.
*/
package engine
