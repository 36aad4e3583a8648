package zoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// copyBytesBar is an io.Writer that advances a progress bar as bytes are
// written. It requires knowing the content length.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, barUnit: 1}
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	if toUnits := bar.amountWritten / bar.barUnit; toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

func (bar *copyBytesBar) finish() {
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (r *Registry) downloadIfMissing(ctx context.Context, src, filePath string) error {
	if fileExists(filePath) {
		return nil
	}
	klog.Infof("Downloading %s ...", src)
	size, err := r.download(ctx, src, filePath)
	if err != nil {
		return err
	}
	klog.V(1).Infof("downloaded %s to %s", humanize.Bytes(uint64(size)), filePath)
	return nil
}

// download fetches src into filePath through a temporary file, so an
// interrupted transfer never leaves a partial file in the cache.
func (r *Registry) download(ctx context.Context, src, filePath string) (size int64, err error) {
	dir := filepath.Dir(filePath)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory %q", dir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, http.NoBody)
	if err != nil {
		return 0, errors.Wrapf(err, "bad request for %q", src)
	}
	client := r.cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", src)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: %s", src, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".part-*")
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file in %q", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if r.cfg.ShowProgress && resp.ContentLength > 0 {
		bar := newCopyBytesBar(tmp, resp.ContentLength)
		size, err = io.Copy(bar, resp.Body)
		bar.finish()
	} else {
		size, err = io.Copy(tmp, resp.Body)
	}
	if err != nil {
		_ = tmp.Close()
		return 0, errors.Wrapf(err, "downloading %q to %q", src, filePath)
	}
	if err = tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmpName)
	}
	if err = os.Rename(tmpName, filePath); err != nil {
		return 0, errors.Wrapf(err, "failed moving download into %q", filePath)
	}
	return size, nil
}
