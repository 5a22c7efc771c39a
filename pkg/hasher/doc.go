/*
Package hasher computes streaming content hashes under a bounded memory
budget.

Three digests cover the engine's verification protocols:

  - SHA-256: manifest entries on the stable channel
  - CRC-32 (IEEE): legacy manifest entries without a sha256 field
  - Blob identity: SHA-1 over "blob <size>\x00<bytes>", the content
    address used by the repository host's tree objects on the developer
    channel

# Streaming Contract

All operations consume a ChunkSource, a single-method interface yielding
byte slices until io.EOF. Sources reuse one fixed buffer, so hashing an
arbitrarily large artifact costs O(chunk_size) memory. NewReaderSource
adapts any io.Reader; BytesSource wraps an in-memory payload.

The blob identity hash prepends the declared size to the digest input, so
it fails with an integrity error when the stream length disagrees with the
size the tree entry asserted — a truncated download can never produce the
expected identity.

# CRC Table Scope

The CRC-32 table is built once per Hasher instance rather than held in
package state, so the engine owns exactly one table reference for its
lifetime.
*/
package hasher
