package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/backend/cpu"
	"github.com/born-ml/vision/models/vgg"
	"github.com/born-ml/vision/tensor"
	"github.com/born-ml/vision/zoo"
)

func runBackbone(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backbone", flag.ExitOnError)
	size := fs.Int("size", 300, "Input resolution: 300 or 512.")
	batchNorm := fs.Bool("bn", false, "Insert BatchNorm2D after every base conv.")
	pretrained := fs.Bool("pretrained", false, "Load the reduced VGG-16 weights from the zoo.")
	cacheDir, baseURL := registryFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size != 300 && *size != 512 {
		return errors.Errorf("unsupported size %d, want 300 or 512", *size)
	}

	backbone := vgg.New(vgg.Config{Size: *size, BatchNorm: *batchNorm}, cpu.New())
	if *pretrained {
		weights, err := newRegistry(*cacheDir, *baseURL).StateDict(ctx, zoo.VGG16Reduced)
		if err != nil {
			return err
		}
		if err := backbone.InitFromPretrain(weights); err != nil {
			return err
		}
	}
	var numParams int
	for _, p := range backbone.Parameters() {
		numParams += p.Tensor().NumElements()
	}
	fmt.Printf("%s: %s parameters, %d base layers, %d extra layers\n",
		backbone.ModelType(), humanize.Comma(int64(numParams)), backbone.Base().Len(), backbone.Extras().Len())

	x := tensor.RandN(tensor.Shape{1, 3, *size, *size}, tensor.Float32, tensor.CPU, rand.New(rand.NewSource(0))) //nolint:gosec // demo input
	start := time.Now()
	features := backbone.Forward(x)
	klog.V(1).Infof("forward pass took %s", time.Since(start))
	for i, f := range features {
		fmt.Printf("  source %d: %v\n", i, f.Shape())
	}
	return nil
}
