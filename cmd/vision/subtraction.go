package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/autodiff"
	"github.com/born-ml/vision/distributed"
	"github.com/born-ml/vision/tensor"
)

type timing struct {
	Rank     int
	Backend  string
	Forward  time.Duration
	Backward time.Duration
}

func runSubtraction(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subtraction", flag.ExitOnError)
	batch := fs.Int("n", 2, "Batch size.")
	channels := fs.Int("c", 16, "Channels.")
	size := fs.Int("size", 32, "Height and width of the inputs.")
	kernel := fs.Int("kernel", 3, "Kernel size.")
	stride := fs.Int("stride", 1, "Stride.")
	dilation := fs.Int("dilation", 1, "Dilation.")
	padding := fs.Int("padding", -1, "Padding (default keeps the spatial size at stride 1).")
	reflect := fs.Bool("reflect", false, "Aggregate with reflect padding instead of zero padding.")
	repeat := fs.Int("repeat", 5, "Timed repetitions.")
	dist := fs.Bool("distributed", false, "Join the process group described by RANK/WORLD_SIZE.")
	localRank := fs.Int("local_rank", 0, "Local rank of this process.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batch < 1 || *channels < 1 || *size < 1 || *repeat < 1 {
		return errors.Errorf("invalid sizes: n=%d c=%d size=%d repeat=%d", *batch, *channels, *size, *repeat)
	}
	if *padding < 0 {
		*padding = (*kernel - 1) / 2 * *dilation
	}
	win, err := tensor.NewWindow(*kernel, *stride, *padding, *dilation)
	if err != nil {
		return err
	}
	mode := tensor.PadZero
	if *reflect {
		mode = tensor.PadReflect
	}

	device, group, err := distributed.SetBenchmarkDevice(*dist, *localRank, distributed.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = group.Close() }()
	backend := autodiff.New(device)

	rng := rand.New(rand.NewSource(int64(group.Rank()))) //nolint:gosec // benchmark input
	shape := tensor.Shape{*batch, *channels, *size, *size}
	x1 := tensor.RandN(shape, tensor.Float32, tensor.CPU, rng).WithDevice(device.Device())
	x2 := tensor.RandN(shape, tensor.Float32, tensor.CPU, rng).WithDevice(device.Device())

	var fwd, bwd time.Duration
	var out *tensor.RawTensor
	for range *repeat {
		if err := ctx.Err(); err != nil {
			return err
		}
		backend.Tape().Clear()
		backend.Tape().StartRecording()
		start := time.Now()
		diff, err := backend.Subtraction2ZeroPad(x1, x2, win)
		if err != nil {
			return err
		}
		// Differences double as per-pixel aggregation weights over the
		// same window.
		out, err = backend.Aggregation(x2, diff, win, mode)
		if err != nil {
			return errors.WithMessage(err, "aggregating with the differences as weights")
		}
		fwd += time.Since(start)
		backend.Tape().StopRecording()

		start = time.Now()
		grads := autodiff.Backward(out, backend)
		bwd += time.Since(start)
		klog.V(2).Infof("gradients: %d tensors", len(grads))
	}

	mine := timing{
		Rank:     group.Rank(),
		Backend:  device.Name(),
		Forward:  fwd / time.Duration(*repeat),
		Backward: bwd / time.Duration(*repeat),
	}
	all, err := distributed.AllGather(group, mine)
	if err != nil {
		return err
	}
	group.Printf("input %v, %s, pad mode %s, output %v (%s)\n",
		shape, win, mode, out.Shape(), humanize.Bytes(uint64(out.ByteSize())))
	for _, t := range all {
		group.Printf("  rank %d on %s: forward %s, backward %s\n", t.Rank, t.Backend, t.Forward, t.Backward)
	}
	return nil
}
