package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"

	"github.com/born-ml/vision/backend/cpu"
	"github.com/born-ml/vision/checkpoint"
	"github.com/born-ml/vision/distributed"
	"github.com/born-ml/vision/models/squeezenet"
	"github.com/born-ml/vision/nn"
	"github.com/born-ml/vision/optim"
	"github.com/born-ml/vision/tensor"
)

type retrainFlags struct {
	classes, epochs, iters, batch, image int
	seed                                 int64
	optimizer                            string
	lr, momentum, weightDecay, gamma     float64
	stepSize                             int
	pretrained, trainOnlyLast, resume    bool
	weights, outDir                      string
	cacheDir, baseURL                    *string
}

func parseRetrainFlags(args []string) (*retrainFlags, error) {
	f := &retrainFlags{}
	fs := flag.NewFlagSet("retrain", flag.ExitOnError)
	fs.IntVar(&f.classes, "classes", 10, "Number of target classes.")
	fs.IntVar(&f.epochs, "epochs", 10, "Number of epochs.")
	fs.IntVar(&f.iters, "iters", 20, "Iterations per epoch.")
	fs.IntVar(&f.batch, "batch", 8, "Batch size per process.")
	fs.IntVar(&f.image, "image", 64, "Synthetic image size in pixels.")
	fs.Int64Var(&f.seed, "seed", 1, "Seed of the synthetic data; each rank offsets it by its rank.")
	fs.StringVar(&f.optimizer, "optimizer", "sgd", "Optimizer: sgd or adam.")
	fs.Float64Var(&f.lr, "lr", 3e-5, "Learning rate.")
	fs.Float64Var(&f.momentum, "momentum", 0.9, "SGD momentum.")
	fs.Float64Var(&f.weightDecay, "wd", 3e-8, "SGD weight decay.")
	fs.IntVar(&f.stepSize, "step", 7, "Epochs between learning-rate decays.")
	fs.Float64Var(&f.gamma, "gamma", 0.1, "Learning-rate decay factor.")
	fs.BoolVar(&f.pretrained, "pretrained", false, "Start from the ImageNet weights in the zoo.")
	fs.BoolVar(&f.trainOnlyLast, "train_only_last", true, "Freeze everything but the new classifier.")
	fs.BoolVar(&f.resume, "resume", true, "Resume from the last checkpoint in -out, if any.")
	fs.StringVar(&f.weights, "weights", "", "Checkpoint file or URL to start from.")
	fs.StringVar(&f.outDir, "out", "output", "Directory for checkpoints and log.txt.")
	f.cacheDir, f.baseURL = registryFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.classes < 2 || f.batch < 1 || f.iters < 1 || f.image < 32 {
		return nil, errors.Errorf("invalid sizes: classes=%d batch=%d iters=%d image=%d", f.classes, f.batch, f.iters, f.image)
	}
	return f, nil
}

// syntheticBatch draws images whose class shifts the mean of one channel,
// so the head has something to learn even on random features.
func syntheticBatch(rng *rand.Rand, batch, classes, size int) (*tensor.RawTensor, []int) {
	x := tensor.RandN(tensor.Shape{batch, 3, size, size}, tensor.Float32, tensor.CPU, rng)
	values := x.AsFloat32()
	labels := make([]int, batch)
	plane := size * size
	for b := range batch {
		k := rng.Intn(classes)
		labels[b] = k
		shift := float32(1+k/3) * 0.75
		start := (b*3 + k%3) * plane
		for i := start; i < start+plane; i++ {
			values[i] += shift
		}
	}
	return x, labels
}

func runRetrain(ctx context.Context, args []string) error {
	f, err := parseRetrainFlags(args)
	if err != nil {
		return err
	}

	dist, err := distributed.InitFromEnv(distributed.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = dist.Close() }()
	logger, logFile, err := distributed.SetupLogger("retrain", dist.Rank(), f.outDir)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	backend := cpu.New()
	model, params, err := squeezenet.Retrain(ctx, f.classes, squeezenet.RetrainConfig{
		Pretrained:         f.pretrained,
		TrainOnlyLastLayer: f.trainOnlyLast,
		Registry:           newRegistry(*f.cacheDir, *f.baseURL),
	}, backend)
	if err != nil {
		return err
	}
	if !f.trainOnlyLast {
		logger.Info("only the classifier receives gradients; other parameters stay fixed")
	}

	var optimizer optim.Optimizer
	switch f.optimizer {
	case "sgd":
		optimizer = optim.NewSGD(params, optim.SGDConfig{LR: f.lr, Momentum: f.momentum, WeightDecay: f.weightDecay})
	case "adam":
		optimizer = optim.NewAdam(params, optim.AdamConfig{LR: f.lr})
	default:
		return errors.Errorf("unknown optimizer %q", f.optimizer)
	}
	scheduler := optim.NewStepLR(optimizer, optim.StepLRConfig{StepSize: f.stepSize, Gamma: f.gamma})

	parallel := distributed.NewDataParallel(model, dist)
	ckpt := checkpoint.New(parallel, checkpoint.Config{
		Optimizer:  optimizer,
		Scheduler:  scheduler,
		SaveDir:    f.outDir,
		SaveToDisk: dist.IsMainProcess(),
		Logger:     logger.WithName("checkpoint"),
	})
	extra, err := ckpt.Load(ctx, f.weights, f.resume)
	if err != nil {
		return err
	}
	startEpoch := 0
	if e, ok := extra["epoch"].(float64); ok {
		startEpoch = int(e)
	}

	logger.Info("start training", "params", len(params), "world_size", dist.WorldSize(),
		"start_epoch", startEpoch, "lr", optimizer.GetLR())
	rng := rand.New(rand.NewSource(f.seed + int64(dist.Rank()))) //nolint:gosec // synthetic data
	model.SetTraining(true)
	for epoch := startEpoch; epoch < f.epochs; epoch++ {
		start := time.Now()
		var lossSum float64
		var correct int
		for range f.iters {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, labels := syntheticBatch(rng, f.batch, f.classes, f.image)
			loss, logits, grads := model.HeadGradients(x, labels)
			if err := parallel.SyncGradients(grads); err != nil {
				return err
			}
			optimizer.Step(grads)
			lossSum += loss
			for i, p := range nn.Argmax(logits) {
				if p == labels[i] {
					correct++
				}
			}
		}
		scheduler.Step()

		metrics := map[string]*tensor.RawTensor{
			"loss":     must.M1(tensor.FromFloat64(tensor.Shape{1}, []float64{lossSum / float64(f.iters)})),
			"accuracy": must.M1(tensor.FromFloat64(tensor.Shape{1}, []float64{float64(correct) / float64(f.iters*f.batch)})),
		}
		reduced, err := dist.ReduceDict(metrics, true)
		if err != nil {
			return err
		}
		logger.Info("epoch done", "epoch", epoch+1, "loss", reduced["loss"].At(0),
			"accuracy", reduced["accuracy"].At(0), "lr", scheduler.GetLR(), "elapsed", time.Since(start).Round(time.Millisecond))
		dist.Printf("epoch %d/%d loss %.4f accuracy %.3f\n", epoch+1, f.epochs, reduced["loss"].At(0), reduced["accuracy"].At(0))

		if err := ckpt.Save(fmt.Sprintf("model_%04d", epoch+1), map[string]any{"epoch": epoch + 1}); err != nil {
			return err
		}
		if err := dist.Barrier(); err != nil {
			return err
		}
	}
	return ckpt.Save("model_final", map[string]any{"epoch": f.epochs})
}
