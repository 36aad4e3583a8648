// Package checkpoint saves and restores training state: the model, and
// optionally the optimizer and the learning-rate scheduler, plus any extra
// values the training loop wants back on resume.
//
// Each checkpoint is one .born file in the save directory. The file
// last_checkpoint.txt in the same directory always names the most recent
// one.
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/distributed"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/optim"
	"github.com/born-ml/vision/internal/serialization"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/zoo"
)

// LastCheckpointFile names the pointer file kept in the save directory.
const LastCheckpointFile = "last_checkpoint.txt"

// FileExt is the extension of checkpoint files.
const FileExt = ".born"

// Config configures a CheckPointer. All fields are optional.
type Config struct {
	// Optimizer is saved and restored along with the model when set.
	Optimizer optim.Optimizer

	// Scheduler is saved and restored along with the model when set.
	Scheduler optim.Scheduler

	// SaveDir holds the checkpoint files. Save is a no-op while empty.
	SaveDir string

	// SaveToDisk enables Save. Typically only the main process saves.
	SaveToDisk bool

	// Logger defaults to klog.Background() named "checkpoint".
	Logger klog.Logger

	// Registry caches checkpoints loaded from http(s) URLs. Defaults to
	// zoo.DefaultRegistry().
	Registry *zoo.Registry
}

// Model is what a CheckPointer needs from the model it persists. Every
// nn.Module satisfies it, as do multi-output backbones.
type Model interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// CheckPointer saves and restores the training state of one model.
type CheckPointer struct {
	model Model
	cfg   Config
	log   klog.Logger
}

// New creates a CheckPointer for model.
func New(model Model, cfg Config) *CheckPointer {
	log := cfg.Logger
	if log.GetSink() == nil {
		log = klog.Background().WithName("checkpoint")
	}
	return &CheckPointer{model: model, cfg: cfg, log: log}
}

// HasOptimizer reports whether an optimizer is attached.
func (c *CheckPointer) HasOptimizer() bool { return c.cfg.Optimizer != nil }

// HasScheduler reports whether a scheduler is attached.
func (c *CheckPointer) HasScheduler() bool { return c.cfg.Scheduler != nil }

// unwrapped returns the model behind a data-parallel wrapper.
func (c *CheckPointer) unwrapped() Model {
	if dp, ok := c.model.(*distributed.DataParallel); ok {
		return dp.Unwrap()
	}
	return c.model
}

// Save writes the model, the attached optimizer and scheduler and extra to
// SaveDir/<name>.born, then points last_checkpoint.txt at it. extra must
// be JSON-encodable. Save does nothing when SaveDir is empty or SaveToDisk
// is off.
func (c *CheckPointer) Save(name string, extra map[string]any) error {
	if c.cfg.SaveDir == "" || !c.cfg.SaveToDisk {
		return nil
	}
	if err := os.MkdirAll(c.cfg.SaveDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create checkpoint directory %q", c.cfg.SaveDir)
	}

	state := nn.PrefixStateDict(serialization.ModelPrefix, c.unwrapped().StateDict())
	meta := &serialization.CheckpointMeta{ID: uuid.NewString(), Extra: extra}
	if c.cfg.Optimizer != nil {
		nn.MergeStateDict(state, serialization.OptimizerPrefix, c.cfg.Optimizer.StateDict())
		meta.HasOptimizer = true
	}
	if c.cfg.Scheduler != nil {
		nn.MergeStateDict(state, serialization.SchedulerPrefix, c.cfg.Scheduler.StateDict())
		meta.HasScheduler = true
	}

	saveFile := filepath.Join(c.cfg.SaveDir, name+FileExt)
	c.log.Info("Saving checkpoint to " + saveFile)
	header := serialization.Header{ModelType: modelType(c.unwrapped()), CheckpointMeta: meta}
	if err := serialization.WriteFile(saveFile, state, header); err != nil {
		return errors.Wrapf(err, "saving checkpoint %q", saveFile)
	}
	if info, err := os.Stat(saveFile); err == nil {
		klog.V(1).Infof("checkpoint %s: %d tensors, %s", saveFile, len(state), humanize.Bytes(uint64(info.Size())))
	}
	return c.tagLastCheckpoint(saveFile)
}

// Load restores the state saved in path and returns its extra values.
//
// When useLatest is set and the pointer file exists, the checkpoint it
// names replaces path. If no file can be resolved (path is "" or "None"),
// Load logs "No checkpoint found." and returns an empty map. http(s) paths
// are downloaded into the weights cache first. The model is restored
// first, then the optimizer and the scheduler, each only when both the file
// and this CheckPointer have one.
func (c *CheckPointer) Load(ctx context.Context, path string, useLatest bool) (map[string]any, error) {
	if useLatest && c.HasCheckpoint() {
		path = c.LastCheckpoint()
	}
	if path == "" || path == "None" {
		c.log.Info("No checkpoint found.")
		return map[string]any{}, nil
	}

	c.log.Info("Loading checkpoint from " + path)
	state, header, err := c.loadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	meta := header.CheckpointMeta
	if meta == nil {
		meta = &serialization.CheckpointMeta{}
	}

	if err := c.unwrapped().LoadStateDict(nn.SubStateDict(state, serialization.ModelPrefix)); err != nil {
		return nil, errors.WithMessagef(err, "restoring model from %q", path)
	}
	if meta.HasOptimizer && c.cfg.Optimizer != nil {
		c.log.Info("Loading optimizer from " + path)
		if err := c.cfg.Optimizer.LoadStateDict(nn.SubStateDict(state, serialization.OptimizerPrefix)); err != nil {
			return nil, errors.WithMessagef(err, "restoring optimizer from %q", path)
		}
	}
	if meta.HasScheduler && c.cfg.Scheduler != nil {
		c.log.Info("Loading scheduler from " + path)
		if err := c.cfg.Scheduler.LoadStateDict(nn.SubStateDict(state, serialization.SchedulerPrefix)); err != nil {
			return nil, errors.WithMessagef(err, "restoring scheduler from %q", path)
		}
	}

	extra := make(map[string]any, len(meta.Extra))
	for k, v := range meta.Extra {
		extra[k] = v
	}
	return extra, nil
}

func (c *CheckPointer) loadFile(ctx context.Context, path string) (map[string]*tensor.RawTensor, serialization.Header, error) {
	if strings.HasPrefix(path, "http") {
		registry := c.cfg.Registry
		if registry == nil {
			registry = zoo.DefaultRegistry()
		}
		cached, err := registry.CacheURL(ctx, path)
		if err != nil {
			return nil, serialization.Header{}, err
		}
		c.log.Info("url " + path + " cached in " + cached)
		path = cached
	}
	state, header, err := serialization.ReadFile(path, serialization.ReaderOptions{})
	if err != nil {
		return nil, serialization.Header{}, errors.Wrapf(err, "reading checkpoint %q", path)
	}
	return state, header, nil
}

// LastCheckpoint returns the path named by the pointer file, or "" when it
// cannot be read, e.g. because another process just removed it.
func (c *CheckPointer) LastCheckpoint() string {
	data, err := os.ReadFile(filepath.Join(c.cfg.SaveDir, LastCheckpointFile))
	if err != nil {
		if !os.IsNotExist(err) {
			klog.Warningf("reading %s: %v", LastCheckpointFile, err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// HasCheckpoint reports whether the pointer file exists.
func (c *CheckPointer) HasCheckpoint() bool {
	_, err := os.Stat(filepath.Join(c.cfg.SaveDir, LastCheckpointFile))
	return err == nil
}

func (c *CheckPointer) tagLastCheckpoint(saveFile string) error {
	pointer := filepath.Join(c.cfg.SaveDir, LastCheckpointFile)
	if err := os.WriteFile(pointer, []byte(saveFile), 0o644); err != nil {
		return errors.Wrapf(err, "updating %q", pointer)
	}
	return nil
}

func modelType(m Model) string {
	if s, ok := m.(interface{ ModelType() string }); ok {
		return s.ModelType()
	}
	return ""
}
