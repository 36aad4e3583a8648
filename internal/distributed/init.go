package distributed

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/backend/webgpu"
	"github.com/born-ml/vision/internal/tensor"
)

// Options configures InitFromEnv.
type Options struct {
	// Addr is the rendezvous address. Defaults to MASTER_ADDR:MASTER_PORT,
	// or 127.0.0.1:29500 when those are unset.
	Addr string

	// JoinTimeout bounds how long ranks wait for each other while the
	// group forms (default 5 minutes). Collectives themselves never time out.
	JoinTimeout time.Duration

	// Output receives the console messages (default os.Stdout).
	Output io.Writer

	// Getenv replaces os.Getenv, for tests.
	Getenv func(string) string
}

func (o *Options) defaults() {
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
	if o.JoinTimeout == 0 {
		o.JoinTimeout = 5 * time.Minute
	}
	if o.Addr == "" {
		host, port := o.Getenv("MASTER_ADDR"), o.Getenv("MASTER_PORT")
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "29500"
		}
		o.Addr = net.JoinHostPort(host, port)
	}
}

// Launch describes this process's place in the run, as read from the
// environment.
type Launch struct {
	Distributed bool
	Rank        int
	WorldSize   int
	LocalRank   int
}

// LaunchFromEnv reads RANK, WORLD_SIZE and LOCAL_RANK, falling back to the
// SLURM_PROCID, SLURM_NTASKS and SLURM_LOCALID variables set by Slurm.
func LaunchFromEnv(getenv func(string) string) (Launch, error) {
	atoi := func(key string, def int) (int, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		return n, errors.Wrapf(err, "parsing %s=%q", key, v)
	}

	var l Launch
	var err error
	switch {
	case getenv("RANK") != "" && getenv("WORLD_SIZE") != "":
		if l.Rank, err = atoi("RANK", 0); err != nil {
			return Launch{}, err
		}
		if l.WorldSize, err = atoi("WORLD_SIZE", 1); err != nil {
			return Launch{}, err
		}
		if l.LocalRank, err = atoi("LOCAL_RANK", l.Rank); err != nil {
			return Launch{}, err
		}
	case getenv("SLURM_PROCID") != "":
		if l.Rank, err = atoi("SLURM_PROCID", 0); err != nil {
			return Launch{}, err
		}
		if l.WorldSize, err = atoi("SLURM_NTASKS", 1); err != nil {
			return Launch{}, err
		}
		if l.LocalRank, err = atoi("SLURM_LOCALID", l.Rank); err != nil {
			return Launch{}, err
		}
	default:
		return Launch{WorldSize: 1}, nil
	}
	if l.WorldSize < 1 || l.Rank < 0 || l.Rank >= l.WorldSize {
		return Launch{}, errors.Errorf("rank %d is outside world size %d", l.Rank, l.WorldSize)
	}
	l.Distributed = true
	return l, nil
}

// InitFromEnv sets up the distributed run described by the environment.
// Without launcher variables it prints "Not using distributed mode" and
// returns a single-process context. Otherwise it joins the TCP group,
// waits on a barrier and gates printing to rank 0.
func InitFromEnv(opts Options) (*Context, error) {
	opts.defaults()
	launch, err := LaunchFromEnv(opts.Getenv)
	if err != nil {
		return nil, err
	}
	if !launch.Distributed {
		c := SingleProcess()
		c.SetOutput(opts.Output)
		c.ForcePrintln("Not using distributed mode")
		return c, nil
	}
	return join(launch, opts)
}

func join(launch Launch, opts Options) (*Context, error) {
	_, _ = fmt.Fprintf(opts.Output, "| distributed init (rank %d): tcp://%s\n", launch.Rank, opts.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), opts.JoinTimeout)
	defer cancel()
	group, err := NewTCPGroup(ctx, opts.Addr, launch.Rank, launch.WorldSize)
	if err != nil {
		return nil, err
	}
	c := NewContext(group, launch.LocalRank)
	c.SetOutput(opts.Output)
	if err := c.Barrier(); err != nil {
		_ = group.Close()
		return nil, errors.WithMessage(err, "initial barrier")
	}
	c.SetupPrinting(launch.Rank == 0)
	klog.V(1).Infof("distributed: rank %d/%d joined session %s", launch.Rank, launch.WorldSize, group.Session())
	return c, nil
}

// SetBenchmarkDevice picks the compute backend for a run: WebGPU for the
// neighborhood kernels when an adapter is available, the CPU otherwise.
// When distributed is set it also joins the group as in InitFromEnv,
// with localRank recorded on the returned context.
func SetBenchmarkDevice(distributed bool, localRank int, opts Options) (tensor.NeighborhoodBackend, *Context, error) {
	opts.defaults()
	var backend tensor.NeighborhoodBackend = cpu.New()
	if webgpu.IsAvailable() {
		if gpu, err := webgpu.New(); err == nil {
			backend = gpu
		} else {
			klog.Warningf("WebGPU adapter found but unusable, staying on CPU: %v", err)
		}
	}
	klog.V(1).Infof("benchmark device: %s", backend.Name())

	if !distributed {
		return backend, SingleProcess(), nil
	}
	launch, err := LaunchFromEnv(opts.Getenv)
	if err != nil {
		return nil, nil, err
	}
	if !launch.Distributed {
		return nil, nil, errors.New("distributed run requested but RANK/WORLD_SIZE are not set")
	}
	launch.LocalRank = localRank
	c, err := join(launch, opts)
	if err != nil {
		return nil, nil, err
	}
	return backend, c, nil
}
