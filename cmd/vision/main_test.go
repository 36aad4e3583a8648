package main

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/checkpoint"
	"github.com/born-ml/vision/zoo"
)

func clearLaunchEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RANK", "WORLD_SIZE", "LOCAL_RANK", "SLURM_PROCID", "SLURM_NTASKS", "SLURM_LOCALID"} {
		t.Setenv(k, "")
	}
}

func TestSyntheticBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x, labels := syntheticBatch(rng, 6, 4, 8)
	assert.Equal(t, []int{6, 3, 8, 8}, []int(x.Shape()))
	require.Len(t, labels, 6)
	for _, k := range labels {
		assert.True(t, k >= 0 && k < 4, "label %d", k)
	}
}

func TestNewRegistry_FlagOverrides(t *testing.T) {
	t.Setenv(zoo.EnvWeightsURL, "http://env.invalid/")
	r := newRegistry("/tmp/weights", "")
	assert.Equal(t, "/tmp/weights", r.Config().CacheDir)
	assert.Equal(t, "http://env.invalid/", r.Config().BaseURL)

	r = newRegistry("", "http://flag.invalid/")
	assert.Equal(t, "http://flag.invalid/", r.Config().BaseURL)
	_, ok := r.Lookup(zoo.SqueezeNet11)
	assert.True(t, ok)
}

func TestRetrain_SavesAndResumes(t *testing.T) {
	clearLaunchEnv(t)
	out := t.TempDir()
	ctx := context.Background()
	args := []string{"-classes", "3", "-batch", "2", "-iters", "2", "-image", "32", "-out", out}

	require.NoError(t, runRetrain(ctx, append(args, "-epochs", "2")))
	pointer, err := os.ReadFile(filepath.Join(out, checkpoint.LastCheckpointFile))
	require.NoError(t, err)
	assert.Equal(t, "model_final.born", filepath.Base(strings.TrimSpace(string(pointer))))
	assert.FileExists(t, filepath.Join(out, "model_0002.born"))
	assert.FileExists(t, filepath.Join(out, "log.txt"))

	// Resuming picks up at epoch 2, so only epoch 3 is trained.
	require.NoError(t, runRetrain(ctx, append(args, "-epochs", "3", "-optimizer", "sgd")))
	assert.FileExists(t, filepath.Join(out, "model_0003.born"))
	log, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), `"start_epoch"=2`)
}

func TestRetrain_RejectsBadFlags(t *testing.T) {
	clearLaunchEnv(t)
	err := runRetrain(context.Background(), []string{"-classes", "1", "-out", t.TempDir()})
	assert.Error(t, err)

	err = runRetrain(context.Background(), []string{"-optimizer", "lbfgs", "-image", "32", "-iters", "1", "-out", t.TempDir()})
	assert.ErrorContains(t, err, "unknown optimizer")
}

func TestSubtraction(t *testing.T) {
	clearLaunchEnv(t)
	require.NoError(t, runSubtraction(context.Background(), []string{"-n", "1", "-c", "2", "-size", "6", "-repeat", "1"}))
	require.NoError(t, runSubtraction(context.Background(), []string{"-n", "1", "-c", "2", "-size", "6", "-repeat", "1", "-reflect", "-dilation", "2"}))
}

func TestSubtraction_RejectsBadFlags(t *testing.T) {
	clearLaunchEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"zero repeat", []string{"-repeat", "0"}},
		{"negative repeat", []string{"-repeat", "-3"}},
		{"zero batch", []string{"-n", "0"}},
		{"zero channels", []string{"-c", "0"}},
		{"zero size", []string{"-size", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runSubtraction(context.Background(), tt.args)
			assert.ErrorContains(t, err, "invalid sizes")
		})
	}
}

func TestBackbone(t *testing.T) {
	if testing.Short() {
		t.Skip("full VGG forward pass")
	}
	require.NoError(t, runBackbone(context.Background(), []string{"-size", "300"}))
	assert.Error(t, runBackbone(context.Background(), []string{"-size", "320"}))
}

func TestZoo_List(t *testing.T) {
	require.NoError(t, runZoo(context.Background(), []string{"-cache", t.TempDir(), "list"}))
	assert.Error(t, runZoo(context.Background(), []string{"fetch"}))
	assert.Error(t, runZoo(context.Background(), []string{"prune"}))
}
