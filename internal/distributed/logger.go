package distributed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LogFileName is the file SetupLogger writes under its save directory.
const LogFileName = "log.txt"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogger returns a logger for a training run. Non-zero ranks get a
// logger that discards everything. Rank 0 logs to stdout and, when saveDir
// is set, also appends to saveDir/log.txt; the returned io.Closer closes
// that file.
func SetupLogger(name string, rank int, saveDir string) (klog.Logger, io.Closer, error) {
	if rank > 0 {
		return logr.Discard(), nopCloser{}, nil
	}

	out := io.Writer(os.Stdout)
	var closer io.Closer = nopCloser{}
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return logr.Discard(), nil, errors.Wrapf(err, "failed to create %q", saveDir)
		}
		path := filepath.Join(saveDir, LogFileName)
		//nolint:gosec // G304: the save directory is chosen by the caller
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logr.Discard(), nil, errors.Wrapf(err, "failed to open %q", path)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	var mu sync.Mutex
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		if prefix != "" {
			_, _ = fmt.Fprintf(out, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(out, args)
	}, funcr.Options{LogTimestamp: true, Verbosity: 2})
	return logger.WithName(name), closer, nil
}
