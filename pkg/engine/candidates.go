package engine

import (
	"context"
	"io"

	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/manifest"
	"github.com/cuemby/molt/pkg/pathguard"
	"github.com/cuemby/molt/pkg/stage"
	"github.com/cuemby/molt/pkg/types"
)

// maxManifestBytes bounds the manifest asset download
const maxManifestBytes = 512 * 1024

// plan is the staged work for one update attempt
type plan struct {
	candidates []stage.Candidate
	deletes    []string
	postUpdate string
}

// buildPlan enumerates candidates from the signed manifest when the
// release carries one, otherwise from the commit tree.
func (e *Engine) buildPlan(ctx context.Context, target *types.Target) (*plan, error) {
	if target.Mode == types.RefModeTag {
		if asset := target.Release.ManifestAsset(); asset != nil {
			return e.planFromManifest(ctx, target, asset)
		}
	}
	return e.planFromTree(ctx, target)
}

// planFromManifest downloads, verifies, and expands the manifest
func (e *Engine) planFromManifest(ctx context.Context, target *types.Target, asset *types.ReleaseAsset) (*plan, error) {
	resp, err := e.fetcher.Get(ctx, asset.URL, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrNetwork, err)
	}
	if len(raw) > maxManifestBytes {
		return nil, errdefs.Wrapf(errdefs.ErrResource, "manifest larger than %d bytes", maxManifestBytes)
	}

	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Verify(e.cfg.ManifestKey); err != nil {
		return nil, err
	}
	e.logger.Info().Str("version", m.Version).Int("files", len(m.Files)).Msg("Verified manifest")

	deltaOK := e.cfg.EnableDeltaUpdates
	p := &plan{postUpdate: m.PostUpdate}
	for i := range m.Files {
		f := &m.Files[i]
		// A manifest names exactly what to install; any entry failing
		// the path gate fails the whole plan
		norm, err := e.guard.Check(f.Path)
		if err != nil {
			return nil, err
		}
		cand := stage.Candidate{
			Path:   norm,
			Size:   f.Size,
			SHA256: f.SHA256,
			CRC32:  f.CRC32,
			RawURL: e.gh.RawURL(target.Ref, norm),
		}
		if deltaOK {
			cand.DeltaURL = e.gh.DeltaURL(target.Ref, norm)
		}
		p.candidates = append(p.candidates, cand)
	}
	for _, d := range m.Deletes {
		norm, err := e.guard.Check(d)
		if err != nil {
			return nil, err
		}
		p.deletes = append(p.deletes, norm)
	}
	return p, nil
}

// planFromTree enumerates blob entries from the commit tree, filtered by
// the allow/ignore lists.
func (e *Engine) planFromTree(ctx context.Context, target *types.Target) (*plan, error) {
	tree, err := e.gh.FetchTree(ctx, target.Commit)
	if err != nil {
		return nil, err
	}

	// Tag downloads resolve by tag name, branch downloads by commit so a
	// moving branch tip cannot race the tree listing
	refForDownload := target.Commit
	if target.Mode == types.RefModeTag {
		refForDownload = target.Ref
	}

	deltaOK := e.cfg.EnableDeltaUpdates
	p := &plan{}
	for _, entry := range tree {
		if !entry.IsBlob() {
			continue
		}
		// A host tree entry that fails normalization is hostile input,
		// not a filter miss
		norm, err := pathguard.Normalize(entry.Path)
		if err != nil {
			return nil, err
		}
		if !e.guard.Permitted(norm) {
			continue
		}
		cand := stage.Candidate{
			Path:    norm,
			Size:    entry.Size,
			BlobSHA: entry.SHA,
			RawURL:  e.gh.RawURL(refForDownload, norm),
		}
		if deltaOK {
			cand.DeltaURL = e.gh.DeltaURL(refForDownload, norm)
		}
		p.candidates = append(p.candidates, cand)
	}
	e.logger.Info().Int("candidates", len(p.candidates)).Msg("Enumerated tree candidates")
	return p, nil
}
