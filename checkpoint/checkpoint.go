// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint saves and restores training state.
//
// Each save writes model, optimizer and scheduler state plus caller fields
// to SaveDir/<name>.born and records the file in last_checkpoint.txt, so a
// restarted run can resume from the most recent save.
//
// Example:
//
//	ckpt := checkpoint.New(model, checkpoint.Config{
//	    Optimizer:  optimizer,
//	    Scheduler:  scheduler,
//	    SaveDir:    "output",
//	    SaveToDisk: true,
//	})
//	extra, err := ckpt.Load(ctx, "", true)
//	...
//	err = ckpt.Save("model_0001", map[string]any{"iteration": it})
package checkpoint

import (
	"github.com/born-ml/vision/internal/checkpoint"
)

// CheckPointer saves and restores a model with its optional optimizer and
// scheduler.
type CheckPointer = checkpoint.CheckPointer

// Config configures a CheckPointer.
type Config = checkpoint.Config

// Model is what a CheckPointer persists.
type Model = checkpoint.Model

// File names.
const (
	LastCheckpointFile = checkpoint.LastCheckpointFile
	FileExt            = checkpoint.FileExt
)

// New creates a CheckPointer for model. A *distributed.DataParallel model is
// saved and restored through the module it wraps.
func New(model Model, cfg Config) *CheckPointer {
	return checkpoint.New(model, cfg)
}
