package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/delta"
	"github.com/cuemby/molt/pkg/device"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/fetch"
	"github.com/cuemby/molt/pkg/hasher"
	"github.com/cuemby/molt/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func blobSHA(t *testing.T, data []byte) string {
	t.Helper()
	h := hasher.New(1024)
	digest, err := h.BlobSHA1(int64(len(data)), hasher.BytesSource(data, 256))
	require.NoError(t, err)
	return digest
}

type env struct {
	root     string
	stageDir string
	coord    *Coordinator
	server   *httptest.Server
}

func newEnv(t *testing.T, handler http.Handler, preferDelta bool) *env {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Owner = "acme"
	cfg.Repo = "firmware"
	cfg.HTTPRetries = 1

	root := t.TempDir()
	stageDir := filepath.Join(root, ".ota_stage")
	require.NoError(t, os.MkdirAll(stageDir, 0755))

	coord := New(Options{
		Root:        root,
		StageDir:    stageDir,
		Fetcher:     fetch.New(&cfg, device.NewHost()),
		ChunkSize:   256,
		PreferDelta: preferDelta,
	})
	return &env{root: root, stageDir: stageDir, coord: coord, server: server}
}

func (e *env) staged(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.stageDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return data
}

func TestStageStableSHA256(t *testing.T) {
	content := []byte("demo")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{{
		Path:   "app.py",
		Size:   int64(len(content)),
		SHA256: sha256hex(content),
		RawURL: e.server.URL + "/raw/app.py",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "app.py"))
}

func TestStageDeveloperBlobIdentity(t *testing.T) {
	content := []byte("developer channel payload")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/lib/mod.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{{
		Path:    "lib/mod.py",
		Size:    int64(len(content)),
		BlobSHA: blobSHA(t, content),
		RawURL:  e.server.URL + "/raw/lib/mod.py",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "lib/mod.py"))
}

func TestStageHashMismatchAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{{
		Path:   "app.py",
		SHA256: sha256hex([]byte("original")),
		RawURL: e.server.URL + "/raw/app.py",
	}}

	err := e.coord.StageAll(context.Background(), cands)
	require.Error(t, err)
	assert.True(t, errdefs.IsIntegrity(err))

	// Neither the artifact nor its temp file may remain
	_, statErr := os.Stat(filepath.Join(e.stageDir, "app.py"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(e.stageDir, "app.py.tmp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStageSizeMismatchAborts(t *testing.T) {
	content := []byte("short")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{{
		Path:   "app.py",
		Size:   9999,
		SHA256: sha256hex(content),
		RawURL: e.server.URL + "/raw/app.py",
	}}

	err := e.coord.StageAll(context.Background(), cands)
	require.Error(t, err)
	assert.True(t, errdefs.IsIntegrity(err))
}

func TestStageCRC32Fallback(t *testing.T) {
	content := []byte("crc only entry")
	crc := crc32Of(content)
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/data.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{{
		Path:   "data.bin",
		Size:   int64(len(content)),
		CRC32:  &crc,
		RawURL: e.server.URL + "/raw/data.bin",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "data.bin"))
}

func TestStageUnverifiableRejected(t *testing.T) {
	e := newEnv(t, http.NewServeMux(), false)
	cands := []Candidate{{Path: "app.py", RawURL: e.server.URL + "/raw/app.py"}}

	err := e.coord.StageAll(context.Background(), cands)
	require.Error(t, err)
	assert.True(t, errdefs.IsIntegrity(err))
}

func TestStageUnverifiableAllowedByOptIn(t *testing.T) {
	content := []byte("yolo")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	e.coord.allowUnverified = true
	cands := []Candidate{{Path: "app.py", RawURL: e.server.URL + "/raw/app.py"}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "app.py"))
}

func TestIdentitySkip(t *testing.T) {
	content := []byte("already installed")
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write(content)
	})

	e := newEnv(t, mux, false)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "app.py"), content, 0644))

	cands := []Candidate{{
		Path:   "app.py",
		Size:   int64(len(content)),
		SHA256: sha256hex(content),
		RawURL: e.server.URL + "/raw/app.py",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))

	// No network fetch, nothing staged
	assert.Equal(t, int32(0), fetches.Load())
	_, err := os.Stat(filepath.Join(e.stageDir, "app.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestIdentitySkipGuardsSize(t *testing.T) {
	// Live file differs from the target in size; staging must fetch the
	// target instead of skipping
	live := []byte("v1 content")
	target := []byte("v2 content longer")
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write(target)
	})

	e := newEnv(t, mux, false)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "app.py"), live, 0644))

	cands := []Candidate{{
		Path:   "app.py",
		Size:   int64(len(target)),
		SHA256: sha256hex(target),
		RawURL: e.server.URL + "/raw/app.py",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, target, e.staged(t, "app.py"))
}

func TestDeltaPreferred(t *testing.T) {
	oldContent := make([]byte, 5000)
	for i := range oldContent {
		oldContent[i] = byte(i % 251)
	}
	newContent := append([]byte{}, oldContent...)
	for i := 2000; i < 3000; i++ {
		newContent[i] ^= 0xFF
	}
	patch := delta.Create(oldContent, newContent, 0)

	var rawFetches, deltaFetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/firmware.bin", func(w http.ResponseWriter, r *http.Request) {
		rawFetches.Add(1)
		_, _ = w.Write(newContent)
	})
	mux.HandleFunc("/raw/.deltas/firmware.bin.delta", func(w http.ResponseWriter, r *http.Request) {
		deltaFetches.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(patch)))
		_, _ = w.Write(patch)
	})

	e := newEnv(t, mux, true)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "firmware.bin"), oldContent, 0644))

	cands := []Candidate{{
		Path:     "firmware.bin",
		Size:     int64(len(newContent)),
		SHA256:   sha256hex(newContent),
		RawURL:   e.server.URL + "/raw/firmware.bin",
		DeltaURL: e.server.URL + "/raw/.deltas/firmware.bin.delta",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))

	assert.Equal(t, int32(1), deltaFetches.Load())
	assert.Equal(t, int32(0), rawFetches.Load(), "delta path must not fall back")
	assert.Equal(t, newContent, e.staged(t, "firmware.bin"))
}

func TestDeltaMissingFallsBackToFull(t *testing.T) {
	content := []byte("full fetch fallback")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})
	// No delta endpoint: 404

	e := newEnv(t, mux, true)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "app.py"), []byte("old stuff"), 0644))

	cands := []Candidate{{
		Path:     "app.py",
		Size:     int64(len(content)),
		SHA256:   sha256hex(content),
		RawURL:   e.server.URL + "/raw/app.py",
		DeltaURL: e.server.URL + "/raw/.deltas/app.py.delta",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "app.py"))
}

func TestDeltaCorruptFallsBackToFull(t *testing.T) {
	content := []byte("recovered via full fetch")
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/app.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	})
	mux.HandleFunc("/raw/.deltas/app.py.delta", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("GARBAGE!"))
	})

	e := newEnv(t, mux, true)
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "app.py"), []byte("old"), 0644))

	cands := []Candidate{{
		Path:     "app.py",
		Size:     int64(len(content)),
		SHA256:   sha256hex(content),
		RawURL:   e.server.URL + "/raw/app.py",
		DeltaURL: e.server.URL + "/raw/.deltas/app.py.delta",
	}}

	require.NoError(t, e.coord.StageAll(context.Background(), cands))
	assert.Equal(t, content, e.staged(t, "app.py"))
}

func TestStageFirstFailureStopsRun(t *testing.T) {
	var secondFetched atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/bad.py", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("wrong bytes"))
	})
	mux.HandleFunc("/raw/second.py", func(w http.ResponseWriter, r *http.Request) {
		secondFetched.Store(true)
		_, _ = w.Write([]byte("x"))
	})

	e := newEnv(t, mux, false)
	cands := []Candidate{
		{Path: "bad.py", SHA256: sha256hex([]byte("expected")), RawURL: e.server.URL + "/raw/bad.py"},
		{Path: "second.py", SHA256: sha256hex([]byte("x")), RawURL: e.server.URL + "/raw/second.py"},
	}

	require.Error(t, e.coord.StageAll(context.Background(), cands))
	assert.False(t, secondFetched.Load())
}

func TestTotalSize(t *testing.T) {
	cands := []Candidate{{Size: 100}, {Size: 250}, {Size: 0}}
	assert.Equal(t, int64(350), TotalSize(cands))
}

func crc32Of(data []byte) uint32 {
	h := hasher.New(1024)
	crc, err := h.CRC32(hasher.BytesSource(data, 64))
	if err != nil {
		panic(fmt.Sprintf("crc: %v", err))
	}
	return crc
}
