/*
Package errdefs defines the error kinds used across Molt's update engine.

Every failure surfaced by a component is wrapped with one of the sentinel
kinds so the engine can classify it into an outcome code without string
matching: integrity and path failures abort validation, resource failures
abort before staging, and anything raised during the swap triggers rollback.

# Kinds

  - ErrConfig: bad or placeholder configuration
  - ErrNetwork: transport failure, HTTP >= 400, retries exhausted
  - ErrIntegrity: hash/CRC/size mismatch, bad signature, malformed delta
  - ErrPath: normalization or allow/ignore rejection
  - ErrResource: memory, storage, or battery below configured minimum
  - ErrState: corrupt persisted record (treated as absent and recovered)
  - ErrIOFault: filesystem operation failure

# Usage

Wrap a cause with its kind at the failure site:

	if digest != entry.SHA {
		return errdefs.Wrapf(errdefs.ErrIntegrity, "blob hash mismatch for %s", rel)
	}

Classify at the boundary:

	if errdefs.IsResource(err) {
		return types.OutcomeAbortedResource, err
	}

Kinds compose with errors.Is and %w wrapping, so intermediate layers can add
context freely without losing classification.
*/
package errdefs
