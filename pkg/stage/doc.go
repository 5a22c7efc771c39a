/*
Package stage fetches, verifies, and places update artifacts under the
staging directory.

Staging never touches the live tree. Every candidate goes through the
same funnel regardless of channel:

 1. identity skip — if the live file already hashes to the target
    identity (size compared first), nothing is fetched or written
 2. delta path — when enabled and an old copy exists, the delta
    artifact streams through the applier against the live file; any
    failure at any point falls back silently to a full fetch
 3. full fetch — the raw blob streams through the atomic writer while
    all digests update in the same pass
 4. verification at EOF — developer candidates compare the git blob
    identity (and exact size), stable candidates compare SHA-256, or
    CRC-32 when that is all the manifest carries; declared sizes are
    always enforced
 5. only a verified artifact is renamed from its .tmp into
    stage/<path>; a failed one is deleted and the whole update aborts

A candidate carrying no hash at all is rejected unless the configuration
explicitly opts into unverified content.

Memory stays bounded by one chunk buffer regardless of artifact size;
the chunk is sized by the storage probe before staging begins.
*/
package stage
