/*
Package github resolves update targets against the repository host.

The engine pulls released artifacts from a GitHub-style API. This package
owns every URL the engine constructs:

	GET /repos/{o}/{r}/releases/latest          stable channel entry
	GET /repos/{o}/{r}/git/ref/tags/{tag}       tag -> object
	GET /repos/{o}/{r}/git/tags/{sha}           annotated tag -> commit
	GET /repos/{o}/{r}/git/ref/heads/{branch}   developer channel entry
	GET /repos/{o}/{r}/git/trees/{sha}?recursive=1
	raw.githubusercontent.com/{o}/{r}/{ref}/{path}

# Target Resolution

The stable channel resolves the latest release's tag to a commit,
following one level of annotated-tag indirection, and carries the release
metadata so the engine can locate a manifest.json asset. The developer
channel resolves a branch tip, dereferencing once if the ref points at a
tag object.

# Tree Guards

FetchTree rejects listings over the configured entry count, listings the
host reports as truncated, and — where the transport provides a content
length — listings over the configured byte size, all before the engine
walks a single entry. A hostile or misconfigured repository cannot make
a 200 KB device parse an unbounded tree.

# Delta Artifacts

Deltas for a path live at .deltas/{path with / replaced by _}.delta at
the same ref, published by the host-side release tooling.

SetBaseURLs points the client at a self-hosted mirror; tests use it to
target local servers.
*/
package github
