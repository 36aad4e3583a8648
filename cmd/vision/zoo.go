package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/born-ml/vision/zoo"
)

func runZoo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("zoo", flag.ExitOnError)
	cacheDir, baseURL := registryFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: vision zoo [flags] list | fetch <name>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	registry := newRegistry(*cacheDir, *baseURL)

	switch fs.Arg(0) {
	case "", "list":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFILE\tSHA256")
		for _, e := range registry.Entries() {
			sum := e.SHA256
			if sum == "" {
				sum = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.File, sum)
		}
		return w.Flush()
	case "fetch":
		names := fs.Args()[1:]
		if len(names) == 0 {
			return errors.New("fetch needs at least one model name")
		}
		for _, name := range names {
			path, err := registry.Fetch(ctx, name)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return errors.Wrapf(err, "stat %s", path)
			}
			fmt.Printf("%s: %s (%s)\n", name, path, humanize.Bytes(uint64(info.Size())))
		}
		return nil
	default:
		fs.Usage()
		return errors.Errorf("unknown zoo action %q", fs.Arg(0))
	}
}

func registryFlags(fs *flag.FlagSet) (cacheDir, baseURL *string) {
	cacheDir = fs.String("cache", "", "Weights cache directory (default $"+zoo.EnvCacheDir+" or ~/.cache/born-vision).")
	baseURL = fs.String("url", "", "Base URL weights are downloaded from (default $"+zoo.EnvWeightsURL+").")
	return cacheDir, baseURL
}

// newRegistry returns the built-in registry with flag overrides applied.
func newRegistry(cacheDir, baseURL string) *zoo.Registry {
	cfg := zoo.DefaultConfig()
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return zoo.NewDefaultRegistry(cfg)
}
