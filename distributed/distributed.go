// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package distributed coordinates multi-process training runs.
//
// A Context wraps a ProcessGroup and exposes rank queries, a barrier,
// all-gather of arbitrary values, dictionary reduction and print gating.
// Without a group every collective is the identity.
//
// Example:
//
//	dist, err := distributed.InitFromEnv(distributed.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dist.Close()
//
//	losses, err := dist.ReduceDict(map[string]*tensor.RawTensor{"loss": loss}, true)
//	dist.Printf("loss %.4f\n", losses["loss"].At(0))
package distributed

import (
	"context"
	"io"

	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/distributed"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Context is the process-wide distributed state.
type Context = distributed.Context

// ProcessGroup is the collective communication layer under a Context.
type ProcessGroup = distributed.ProcessGroup

// LocalGroup is one rank of an in-process group.
type LocalGroup = distributed.LocalGroup

// TCPGroup is one rank of a star-topology group over TCP.
type TCPGroup = distributed.TCPGroup

// Options configures InitFromEnv.
type Options = distributed.Options

// Launch describes this process's place in the run.
type Launch = distributed.Launch

// DataParallel wraps a module replicated on every rank.
type DataParallel = distributed.DataParallel

// Errors.
var (
	ErrGroupClosed     = distributed.ErrGroupClosed
	ErrPayloadTooLarge = distributed.ErrPayloadTooLarge
)

// MaxEncodedPayload is the largest payload ByteTensorEncode accepts.
const MaxEncodedPayload = distributed.MaxEncodedPayload

// SingleProcess returns a Context with no group.
func SingleProcess() *Context {
	return distributed.SingleProcess()
}

// NewContext wraps group.
func NewContext(group ProcessGroup, localRank int) *Context {
	return distributed.NewContext(group, localRank)
}

// NewLocalGroup creates size ranks that communicate through shared memory.
func NewLocalGroup(size int) []*LocalGroup {
	return distributed.NewLocalGroup(size)
}

// NewTCPGroup joins the group rendezvousing at addr. Rank 0 listens; the
// other ranks dial until ctx is done.
func NewTCPGroup(ctx context.Context, addr string, rank, size int) (*TCPGroup, error) {
	return distributed.NewTCPGroup(ctx, addr, rank, size)
}

// LaunchFromEnv reads the rank layout from RANK/WORLD_SIZE/LOCAL_RANK or
// the Slurm equivalents.
func LaunchFromEnv(getenv func(string) string) (Launch, error) {
	return distributed.LaunchFromEnv(getenv)
}

// InitFromEnv joins the group described by the environment, or returns a
// single-process Context when none is described.
func InitFromEnv(opts Options) (*Context, error) {
	return distributed.InitFromEnv(opts)
}

// SetBenchmarkDevice picks the compute backend for this rank and joins the
// group when enabled is set.
func SetBenchmarkDevice(enabled bool, localRank int, opts Options) (tensor.NeighborhoodBackend, *Context, error) {
	return distributed.SetBenchmarkDevice(enabled, localRank, opts)
}

// AllGather collects payload from every rank, in rank order.
func AllGather[T any](c *Context, payload T) ([]T, error) {
	return distributed.AllGather(c, payload)
}

// NewDataParallel wraps module for data-parallel training under ctx.
func NewDataParallel(module nn.Module, ctx *Context) *DataParallel {
	return distributed.NewDataParallel(module, ctx)
}

// SetupLogger returns the run logger for rank. Only rank 0 logs; with
// saveDir set it also writes saveDir/log.txt.
func SetupLogger(name string, rank int, saveDir string) (klog.Logger, io.Closer, error) {
	return distributed.SetupLogger(name, rank, saveDir)
}

// ByteTensorEncode writes payload into dst with its length in dst[0].
func ByteTensorEncode(dst []byte, payload any) error {
	return distributed.ByteTensorEncode(dst, payload)
}

// ByteTensorDecode reverses ByteTensorEncode.
func ByteTensorDecode(src []byte, out any) error {
	return distributed.ByteTensorDecode(src, out)
}
