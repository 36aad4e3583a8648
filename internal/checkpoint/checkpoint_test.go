package checkpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/distributed"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/optim"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/zoo"
)

type capture struct {
	mu    sync.Mutex
	lines []string
}

func (c *capture) logger() klog.Logger {
	return funcr.New(func(_, args string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lines = append(c.lines, args)
	}, funcr.Options{})
}

func (c *capture) contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

func newModel() *nn.Sequential {
	backend := cpu.New()
	return nn.NewSequential(
		nn.NewConv2D(3, 4, 3, 1, 1, 1, true, backend),
		nn.NewReLU(backend),
		nn.NewConv2D(4, 2, 1, 1, 0, 1, true, backend),
	)
}

// trainStep gives every parameter a constant gradient and steps the
// optimizer, so momentum buffers exist.
func trainStep(model nn.Module, opt optim.Optimizer) {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	for _, p := range model.Parameters() {
		grads[p.Tensor()] = tensor.Full(p.Tensor().Shape(), 0.5, p.Tensor().DType(), tensor.CPU)
	}
	opt.Step(grads)
}

func assertSameState(t *testing.T, want, got map[string]*tensor.RawTensor) {
	t.Helper()
	require.Equal(t, nn.SortedKeys(want), nn.SortedKeys(got))
	for k, v := range want {
		assert.Equal(t, v.Data(), got[k].Data(), k)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	logs := &capture{}

	model := newModel()
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 3e-5, Momentum: 0.9, WeightDecay: 3e-8})
	sched := optim.NewStepLR(opt, optim.StepLRConfig{})
	trainStep(model, opt)
	sched.Step()

	cp := New(model, Config{Optimizer: opt, Scheduler: sched, SaveDir: dir, SaveToDisk: true, Logger: logs.logger()})
	require.NoError(t, cp.Save("model_0001", map[string]any{"iteration": 12, "arguments": map[string]any{"lr": 3e-5}}))
	assert.True(t, logs.contains("Saving checkpoint to "+filepath.Join(dir, "model_0001.born")))
	assert.Equal(t, filepath.Join(dir, "model_0001.born"), cp.LastCheckpoint())

	fresh := newModel()
	freshOpt := optim.NewSGD(fresh.Parameters(), optim.SGDConfig{LR: 1, Momentum: 0.9, WeightDecay: 3e-8})
	freshSched := optim.NewStepLR(freshOpt, optim.StepLRConfig{})
	restored := New(fresh, Config{Optimizer: freshOpt, Scheduler: freshSched, SaveDir: dir})

	extra, err := restored.Load(context.Background(), filepath.Join(dir, "model_0001.born"), false)
	require.NoError(t, err)
	assertSameState(t, model.StateDict(), fresh.StateDict())
	assertSameState(t, opt.StateDict(), freshOpt.StateDict())
	assert.Equal(t, 1, freshSched.LastEpoch())
	assert.InDelta(t, 3e-5, freshOpt.GetLR(), 1e-18)
	assert.Equal(t, 12.0, extra["iteration"], "extra values come back JSON-decoded")
	assert.Equal(t, map[string]any{"lr": 3e-5}, extra["arguments"])
	assert.NotContains(t, extra, "model")
}

func TestSave_PointerNamesMostRecent(t *testing.T) {
	dir := t.TempDir()
	cp := New(newModel(), Config{SaveDir: dir, SaveToDisk: true})
	assert.False(t, cp.HasCheckpoint())
	assert.Equal(t, "", cp.LastCheckpoint())

	for _, name := range []string{"model_0001", "model_0002", "model_final"} {
		require.NoError(t, cp.Save(name, nil))
		assert.Equal(t, filepath.Join(dir, name+FileExt), cp.LastCheckpoint())
	}
	assert.True(t, cp.HasCheckpoint())
}

func TestSave_Disabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New(newModel(), Config{SaveDir: dir}).Save("x", nil))
	require.NoError(t, New(newModel(), Config{SaveToDisk: true}).Save("x", nil))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_UseLatestOverridesPath(t *testing.T) {
	dir := t.TempDir()
	model := newModel()
	cp := New(model, Config{SaveDir: dir, SaveToDisk: true})
	require.NoError(t, cp.Save("model_final", map[string]any{"tag": "final"}))

	fresh := newModel()
	extra, err := New(fresh, Config{SaveDir: dir}).Load(context.Background(), "/does/not/exist.born", true)
	require.NoError(t, err)
	assert.Equal(t, "final", extra["tag"])
	assertSameState(t, model.StateDict(), fresh.StateDict())

	_, err = New(fresh, Config{SaveDir: dir}).Load(context.Background(), "/does/not/exist.born", false)
	assert.Error(t, err)

	// An empty path resumes from the pointer as well.
	resumed := newModel()
	extra, err = New(resumed, Config{SaveDir: dir}).Load(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "final", extra["tag"])
	assertSameState(t, model.StateDict(), resumed.StateDict())
}

func TestLoad_NoCheckpoint(t *testing.T) {
	logs := &capture{}
	cp := New(newModel(), Config{SaveDir: t.TempDir(), Logger: logs.logger()})

	extra, err := cp.Load(context.Background(), "", true)
	require.NoError(t, err)
	assert.Empty(t, extra)

	extra, err = cp.Load(context.Background(), "None", true)
	require.NoError(t, err)
	assert.Empty(t, extra)
	assert.True(t, logs.contains("No checkpoint found."))
}

func TestLoad_UnreadablePointerMeansNone(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the pointer file cannot be read.
	require.NoError(t, os.Mkdir(filepath.Join(dir, LastCheckpointFile), 0o755))
	logs := &capture{}
	cp := New(newModel(), Config{SaveDir: dir, Logger: logs.logger()})

	assert.Equal(t, "", cp.LastCheckpoint())
	extra, err := cp.Load(context.Background(), "ignored.born", true)
	require.NoError(t, err)
	assert.Empty(t, extra)
	assert.True(t, logs.contains("No checkpoint found."))
}

func TestLoad_OptionalSections(t *testing.T) {
	dir := t.TempDir()
	model := newModel()
	require.NoError(t, New(model, Config{SaveDir: dir, SaveToDisk: true}).Save("model_only", nil))

	// The file has no optimizer: the attached one is left alone.
	fresh := newModel()
	opt := optim.NewSGD(fresh.Parameters(), optim.SGDConfig{LR: 0.5})
	_, err := New(fresh, Config{Optimizer: opt}).Load(context.Background(), filepath.Join(dir, "model_only.born"), false)
	require.NoError(t, err)
	assert.Equal(t, 0.5, opt.GetLR())

	// The file has an optimizer but none is attached.
	withOpt := newModel()
	saver := New(withOpt, Config{Optimizer: optim.NewSGD(withOpt.Parameters(), optim.SGDConfig{}), SaveDir: dir, SaveToDisk: true})
	require.NoError(t, saver.Save("with_opt", nil))
	_, err = New(newModel(), Config{}).Load(context.Background(), filepath.Join(dir, "with_opt.born"), false)
	require.NoError(t, err)
}

func TestLoad_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New(newModel(), Config{SaveDir: dir, SaveToDisk: true}).Save("m", nil))

	backend := cpu.New()
	other := nn.NewSequential(nn.NewConv2D(3, 8, 3, 1, 1, 1, true, backend))
	_, err := New(other, Config{}).Load(context.Background(), filepath.Join(dir, "m.born"), false)
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)
}

func TestSaveLoad_UnwrapsDataParallel(t *testing.T) {
	dir := t.TempDir()
	inner := newModel()
	wrapped := distributed.NewDataParallel(inner, distributed.SingleProcess())
	require.NoError(t, New(wrapped, Config{SaveDir: dir, SaveToDisk: true}).Save("dp", nil))

	// Saved without the wrapper prefix, so a plain model loads it.
	plain := newModel()
	_, err := New(plain, Config{}).Load(context.Background(), filepath.Join(dir, "dp.born"), false)
	require.NoError(t, err)
	assertSameState(t, inner.StateDict(), plain.StateDict())

	freshInner := newModel()
	_, err = New(distributed.NewDataParallel(freshInner, distributed.SingleProcess()), Config{}).
		Load(context.Background(), filepath.Join(dir, "dp.born"), false)
	require.NoError(t, err)
	assertSameState(t, inner.StateDict(), freshInner.StateDict())
}

func TestLoad_FromURL(t *testing.T) {
	src := t.TempDir()
	model := newModel()
	require.NoError(t, New(model, Config{SaveDir: src, SaveToDisk: true}).Save("remote", map[string]any{"epoch": 4}))
	blob, err := os.ReadFile(filepath.Join(src, "remote.born"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(blob)
	}))
	defer srv.Close()

	cache := t.TempDir()
	fresh := newModel()
	cp := New(fresh, Config{Registry: zoo.NewRegistry(zoo.Config{CacheDir: cache})})
	extra, err := cp.Load(context.Background(), srv.URL+"/weights/remote.born", false)
	require.NoError(t, err)
	assert.Equal(t, 4.0, extra["epoch"])
	assertSameState(t, model.StateDict(), fresh.StateDict())
	assert.FileExists(t, filepath.Join(cache, "remote.born"))
}
