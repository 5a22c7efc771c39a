/*
Package manifest models the signed artifact descriptor for stable-channel
updates and the host-side tooling that produces it.

A manifest lists the files of a release with their hashes and sizes,
optional deletions, and an optional post-update hook identifier:

	{
	  "version": "v1.4.0",
	  "files": [{"path": "app.py", "sha256": "...", "crc32": 123, "size": 4}],
	  "deletes": ["legacy.py"],
	  "post_update": "hooks/post.py",
	  "signature": "<hex hmac-sha256>"
	}

# Canonical Form and Signing

The signature is HMAC-SHA-256 over the canonical JSON form of the
manifest with the signature member removed: object keys sorted, minimal
separators, no whitespace, no HTML escaping, number literals verbatim.
Whitespace changes and key reordering therefore never affect the
signature. Verification keeps the raw received bytes so unknown fields
a newer generator added still participate in the digest.

Trust policy: no configured key skips verification (unsigned manifests
accepted by explicit configuration); a configured key with a missing
signature fails; comparison is constant time.

# Generation

Generate is the host-side half: it walks a release tree, hashes every
selected file (SHA-256 and CRC-32), stamps a generation time, signs, and
emits the manifest JSON. Default excludes skip VCS metadata, the engine's
own state files, and Python bytecode droppings.
*/
package manifest
