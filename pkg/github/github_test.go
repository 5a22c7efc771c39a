package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/device"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/fetch"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Owner = "acme"
	cfg.Repo = "firmware"
	cfg.HTTPRetries = 1

	c := New(&cfg, fetch.New(&cfg, device.NewHost()))
	c.SetBaseURLs(server.URL, server.URL)
	return c, server
}

func TestResolveStableDirectCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tag_name": "v1.4.0",
			"assets": []map[string]interface{}{
				{"name": "manifest.json", "url": "http://example/asset/1", "size": 512},
			},
		})
	})
	mux.HandleFunc("/repos/acme/firmware/git/ref/tags/v1.4.0", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"type": "commit", "sha": strings.Repeat("a", 40)},
		})
	})

	c, _ := newTestClient(t, mux)
	target, err := c.ResolveTarget(context.Background(), types.ChannelStable, "")
	require.NoError(t, err)

	assert.Equal(t, "v1.4.0", target.Ref)
	assert.Equal(t, strings.Repeat("a", 40), target.Commit)
	assert.Equal(t, types.RefModeTag, target.Mode)
	require.NotNil(t, target.Release)
	require.NotNil(t, target.Release.ManifestAsset())
	assert.Equal(t, "manifest.json", target.Release.ManifestAsset().Name)
}

func TestResolveStableAnnotatedTag(t *testing.T) {
	tagObj := strings.Repeat("b", 40)
	commit := strings.Repeat("c", 40)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"tag_name": "v2.0.0"})
	})
	mux.HandleFunc("/repos/acme/firmware/git/ref/tags/v2.0.0", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"type": "tag", "sha": tagObj},
		})
	})
	mux.HandleFunc("/repos/acme/firmware/git/tags/"+tagObj, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"type": "commit", "sha": commit},
		})
	})

	c, _ := newTestClient(t, mux)
	target, err := c.ResolveTarget(context.Background(), types.ChannelStable, "")
	require.NoError(t, err)
	assert.Equal(t, commit, target.Commit)
	assert.Nil(t, target.Release.ManifestAsset())
}

func TestResolveDeveloper(t *testing.T) {
	commit := strings.Repeat("d", 40)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"type": "commit", "sha": commit},
		})
	})

	c, _ := newTestClient(t, mux)
	target, err := c.ResolveTarget(context.Background(), types.ChannelDeveloper, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", target.Ref)
	assert.Equal(t, commit, target.Commit)
	assert.Equal(t, types.RefModeBranch, target.Mode)
	assert.Nil(t, target.Release)
}

func TestFetchTree(t *testing.T) {
	commit := strings.Repeat("e", 40)
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/git/trees/"+commit, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tree": []map[string]interface{}{
				{"path": "main.py", "type": "blob", "size": 120, "sha": strings.Repeat("1", 40)},
				{"path": "lib", "type": "tree", "size": 0, "sha": strings.Repeat("2", 40)},
				{"path": "lib/app.py", "type": "blob", "size": 64, "sha": strings.Repeat("3", 40)},
			},
			"truncated": false,
		})
	})

	c, _ := newTestClient(t, mux)
	tree, err := c.FetchTree(context.Background(), commit)
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.True(t, tree[0].IsBlob())
	assert.False(t, tree[1].IsBlob())
}

func TestFetchTreeTooManyFiles(t *testing.T) {
	commit := strings.Repeat("f", 40)
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/git/trees/"+commit, func(w http.ResponseWriter, r *http.Request) {
		entries := make([]map[string]interface{}, 5)
		for i := range entries {
			entries[i] = map[string]interface{}{
				"path": fmt.Sprintf("f%d.py", i), "type": "blob", "size": 1, "sha": strings.Repeat("9", 40),
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"tree": entries})
	})

	c, _ := newTestClient(t, mux)
	c.maxTreeFiles = 3
	_, err := c.FetchTree(context.Background(), commit)
	require.Error(t, err)
	assert.True(t, errdefs.IsResource(err))
}

func TestFetchTreeTruncated(t *testing.T) {
	commit := strings.Repeat("0", 40)
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/firmware/git/trees/"+commit, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tree":      []map[string]interface{}{},
			"truncated": true,
		})
	})

	c, _ := newTestClient(t, mux)
	_, err := c.FetchTree(context.Background(), commit)
	require.Error(t, err)
	assert.True(t, errdefs.IsResource(err))
}

func TestURLBuilders(t *testing.T) {
	cfg := config.Default()
	cfg.Owner = "acme"
	cfg.Repo = "firmware"
	c := New(&cfg, nil)

	assert.Equal(t,
		"https://raw.githubusercontent.com/acme/firmware/v1.0.0/lib/app.py",
		c.RawURL("v1.0.0", "lib/app.py"))

	assert.Equal(t,
		"https://raw.githubusercontent.com/acme/firmware/v1.0.0/.deltas/lib_app.py.delta",
		c.DeltaURL("v1.0.0", "lib/app.py"))
}
