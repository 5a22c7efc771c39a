package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/fetch"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/types"
)

const (
	apiBase = "https://api.github.com"
	rawBase = "https://raw.githubusercontent.com"

	// deltaDir is where release tooling publishes per-file deltas
	deltaDir = ".deltas"
)

// Client resolves update targets and tree listings from the repository
// host's API.
type Client struct {
	fetcher       *fetch.Client
	owner         string
	repo          string
	api           string
	raw           string
	maxTreeFiles  int
	maxTreeSizeKB int
	logger        zerolog.Logger
}

// New creates a repository host client
func New(cfg *config.Config, fetcher *fetch.Client) *Client {
	return &Client{
		fetcher:       fetcher,
		owner:         cfg.Owner,
		repo:          cfg.Repo,
		api:           apiBase,
		raw:           rawBase,
		maxTreeFiles:  cfg.MaxTreeFiles,
		maxTreeSizeKB: cfg.MaxTreeSizeKB,
		logger:        log.WithComponent("github"),
	}
}

// SetBaseURLs overrides the API and raw-content endpoints, for
// self-hosted mirrors and tests.
func (c *Client) SetBaseURLs(api, raw string) {
	c.api = strings.TrimSuffix(api, "/")
	c.raw = strings.TrimSuffix(raw, "/")
}

// refObject is the object a ref or tag points at
type refObject struct {
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type refResponse struct {
	Object refObject `json:"object"`
}

// ResolveTarget maps the configured channel to a target descriptor
func (c *Client) ResolveTarget(ctx context.Context, channel types.Channel, branch string) (*types.Target, error) {
	switch channel {
	case types.ChannelStable:
		return c.resolveStable(ctx)
	case types.ChannelDeveloper:
		return c.resolveDeveloper(ctx, branch)
	default:
		return nil, errdefs.Wrapf(errdefs.ErrConfig, "unknown channel %q", channel)
	}
}

// resolveStable resolves the latest release tag to a commit
func (c *Client) resolveStable(ctx context.Context) (*types.Target, error) {
	var release types.ReleaseInfo
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.api, c.owner, c.repo)
	if err := c.fetcher.GetJSON(ctx, url, &release); err != nil {
		return nil, err
	}
	if release.TagName == "" {
		return nil, errdefs.Wrapf(errdefs.ErrNetwork, "release has no tag_name")
	}

	commit, err := c.resolveRef(ctx, "tags/"+release.TagName)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("tag", release.TagName).Str("commit", commit).Msg("Resolved stable target")
	return &types.Target{
		Ref:     release.TagName,
		Commit:  commit,
		Mode:    types.RefModeTag,
		Release: &release,
	}, nil
}

// resolveDeveloper resolves a branch tip, dereferencing a tag object once
func (c *Client) resolveDeveloper(ctx context.Context, branch string) (*types.Target, error) {
	var ref refResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/ref/heads/%s", c.api, c.owner, c.repo, branch)
	if err := c.fetcher.GetJSON(ctx, url, &ref); err != nil {
		return nil, err
	}

	sha := ref.Object.SHA
	if ref.Object.Type == "tag" {
		var err error
		sha, err = c.resolveTagObject(ctx, sha)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Debug().Str("branch", branch).Str("commit", sha).Msg("Resolved developer target")
	return &types.Target{
		Ref:    branch,
		Commit: sha,
		Mode:   types.RefModeBranch,
	}, nil
}

// resolveRef resolves a ref path like "tags/v1.2.0" to a commit SHA,
// following one level of annotated-tag indirection.
func (c *Client) resolveRef(ctx context.Context, refPath string) (string, error) {
	var ref refResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/ref/%s", c.api, c.owner, c.repo, refPath)
	if err := c.fetcher.GetJSON(ctx, url, &ref); err != nil {
		return "", err
	}
	if ref.Object.Type == "commit" {
		return ref.Object.SHA, nil
	}
	return c.resolveTagObject(ctx, ref.Object.SHA)
}

// resolveTagObject dereferences an annotated tag object to its commit
func (c *Client) resolveTagObject(ctx context.Context, sha string) (string, error) {
	var tag refResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/tags/%s", c.api, c.owner, c.repo, sha)
	if err := c.fetcher.GetJSON(ctx, url, &tag); err != nil {
		return "", err
	}
	return tag.Object.SHA, nil
}

type treeResponse struct {
	Tree      []*types.TreeEntry `json:"tree"`
	Truncated bool               `json:"truncated"`
}

// FetchTree returns the recursive tree listing at a commit, enforcing the
// configured size guards before and after parsing.
func (c *Client) FetchTree(ctx context.Context, commitSHA string) ([]*types.TreeEntry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.api, c.owner, c.repo, commitSHA)
	resp, err := c.fetcher.Get(ctx, url, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Guard on the transport-reported size where available
	if c.maxTreeSizeKB > 0 && resp.ContentLength > int64(c.maxTreeSizeKB)*1024 {
		return nil, errdefs.Wrapf(errdefs.ErrResource,
			"tree listing %d bytes exceeds %d KB limit", resp.ContentLength, c.maxTreeSizeKB)
	}

	var tree treeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrNetwork, "decode tree: %v", err)
	}
	if tree.Truncated {
		return nil, errdefs.Wrapf(errdefs.ErrResource, "tree listing truncated by host")
	}
	if c.maxTreeFiles > 0 && len(tree.Tree) > c.maxTreeFiles {
		return nil, errdefs.Wrapf(errdefs.ErrResource,
			"tree has %d entries, limit %d", len(tree.Tree), c.maxTreeFiles)
	}
	return tree.Tree, nil
}

// RawURL builds the raw blob URL for a path at a ref
func (c *Client) RawURL(ref, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.raw, c.owner, c.repo, ref, path)
}

// DeltaURL builds the raw URL of the delta artifact for a path at a ref.
// Deltas live under .deltas/ with slashes flattened to underscores.
func (c *Client) DeltaURL(ref, path string) string {
	name := strings.ReplaceAll(path, "/", "_") + ".delta"
	return c.RawURL(ref, deltaDir+"/"+name)
}
