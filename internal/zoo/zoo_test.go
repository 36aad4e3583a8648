package zoo

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/serialization"
	"github.com/born-ml/vision/internal/tensor"
)

func weightsBlob(t *testing.T) []byte {
	t.Helper()
	w, err := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, map[string]*tensor.RawTensor{"features.0.weight": w}, serialization.Header{}))
	return buf.Bytes()
}

func newServer(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		body, ok := files[req.URL.Path]
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetch_DownloadsOnceAndVerifies(t *testing.T) {
	blob := weightsBlob(t)
	srv, hits := newServer(t, map[string][]byte{"/weights/tiny.born": blob})

	sum := serialization.ComputeChecksum(blob)
	r := NewRegistry(Config{CacheDir: t.TempDir(), BaseURL: srv.URL + "/weights/"})
	r.Register("tiny", "tiny.born", hex.EncodeToString(sum[:]))

	p, err := r.Fetch(context.Background(), "tiny")
	require.NoError(t, err)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Second call is served from the cache.
	_, err = r.Fetch(context.Background(), "tiny")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	state, err := r.StateDict(context.Background(), "tiny")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, state["features.0.weight"].AsFloat32())
}

func TestFetch_ChecksumMismatch(t *testing.T) {
	srv, _ := newServer(t, map[string][]byte{"/tiny.born": weightsBlob(t)})
	r := NewRegistry(Config{CacheDir: t.TempDir(), BaseURL: srv.URL})
	r.Register("tiny", "tiny.born", "00")

	_, err := r.Fetch(context.Background(), "tiny")
	assert.ErrorIs(t, err, serialization.ErrChecksumMismatch)
}

func TestFetch_Errors(t *testing.T) {
	srv, _ := newServer(t, nil)
	dir := t.TempDir()
	r := NewRegistry(Config{CacheDir: dir, BaseURL: srv.URL})

	_, err := r.Fetch(context.Background(), "unknown")
	assert.Error(t, err)

	r.Register("missing", "missing.born", "")
	_, err = r.Fetch(context.Background(), "missing")
	assert.ErrorContains(t, err, "404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed downloads leave nothing behind")

	offline := NewRegistry(Config{CacheDir: dir})
	offline.Register("missing", "missing.born", "")
	_, err = offline.Fetch(context.Background(), "missing")
	assert.ErrorContains(t, err, EnvWeightsURL)
}

func TestFetch_UsesCachedFileWithoutBaseURL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.born"), weightsBlob(t), 0o600))
	r := NewRegistry(Config{CacheDir: dir})
	r.Register("local", "local.born", "")

	p, err := r.Fetch(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "local.born"), p)
}

func TestCacheURL(t *testing.T) {
	blob := weightsBlob(t)
	srv, hits := newServer(t, map[string][]byte{"/ckpt/model_final.born": blob})
	r := NewRegistry(Config{CacheDir: t.TempDir()})

	p, err := r.CacheURL(context.Background(), srv.URL+"/ckpt/model_final.born?download=1")
	require.NoError(t, err)
	assert.Equal(t, "model_final.born", filepath.Base(p))

	_, err = r.CacheURL(context.Background(), srv.URL+"/ckpt/model_final.born")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = r.CacheURL(context.Background(), srv.URL+"/")
	assert.Error(t, err)
}

func TestDefaultConfig_Environment(t *testing.T) {
	t.Setenv(EnvCacheDir, "/tmp/weights")
	t.Setenv(EnvWeightsURL, "http://example.invalid/w")
	cfg := DefaultConfig()
	assert.Equal(t, "/tmp/weights", cfg.CacheDir)
	assert.Equal(t, "http://example.invalid/w", cfg.BaseURL)

	r := DefaultRegistry()
	var names []string
	for _, e := range r.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{SqueezeNet11, VGG16Reduced}, names)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := expandHome("~/.cache/born-vision")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cache/born-vision"), got)

	got, err = expandHome("/abs/dir")
	require.NoError(t, err)
	assert.Equal(t, "/abs/dir", got)
}

func TestCopyBytesBar(t *testing.T) {
	var dst bytes.Buffer
	bar := newCopyBytesBar(&dst, 3<<20)
	n, err := bar.Write(make([]byte, 1<<20))
	require.NoError(t, err)
	assert.Equal(t, 1<<20, n)
	bar.finish()
	assert.Equal(t, bar.numUnits, bar.addedUnits)
	assert.Equal(t, 1<<20, dst.Len())
}
