// Package zoo resolves pretrained weights to files in a local cache,
// downloading them on first use.
package zoo

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/serialization"
	"github.com/born-ml/vision/internal/tensor"
)

// Environment variables read by DefaultConfig.
const (
	EnvCacheDir   = "BORN_VISION_CACHE"
	EnvWeightsURL = "BORN_VISION_WEIGHTS_URL"
)

// Names of the weights shipped with the default registry.
const (
	SqueezeNet11 = "squeezenet1_1"
	VGG16Reduced = "vgg16_reducedfc"
)

// Config configures where weights are cached and fetched from.
type Config struct {
	// CacheDir holds downloaded files. A leading "~" is expanded.
	CacheDir string

	// BaseURL is prefixed to registry file names. Fetch fails for files
	// not yet cached while it is empty.
	BaseURL string

	// ShowProgress renders a progress bar on stdout while downloading.
	ShowProgress bool

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// DefaultConfig returns the configuration taken from the environment:
// BORN_VISION_CACHE (default ~/.cache/born-vision) and
// BORN_VISION_WEIGHTS_URL.
func DefaultConfig() Config {
	cfg := Config{
		CacheDir:     "~/.cache/born-vision",
		ShowProgress: true,
	}
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		cfg.CacheDir = dir
	}
	if base := os.Getenv(EnvWeightsURL); base != "" {
		cfg.BaseURL = base
	}
	return cfg
}

// Entry describes one registered weights file.
type Entry struct {
	Name   string
	File   string
	SHA256 string // hex digest; empty skips verification
}

// Registry maps model names to weights files. It is safe for concurrent use.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Registry{cfg: cfg, entries: make(map[string]Entry)}
}

// DefaultRegistry returns a registry configured from the environment with
// the built-in weights registered.
func DefaultRegistry() *Registry {
	return NewDefaultRegistry(DefaultConfig())
}

// NewDefaultRegistry returns a registry using cfg with the built-in weights
// registered.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry(cfg)
	r.Register(SqueezeNet11, "squeezenet1_1.born", "")
	r.Register(VGG16Reduced, "vgg16_reducedfc.born", "")
	return r
}

// Config returns the registry configuration.
func (r *Registry) Config() Config { return r.cfg }

// Register adds or replaces the entry for name.
func (r *Registry) Register(name, file, sha256 string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Entry{Name: name, File: file, SHA256: strings.ToLower(sha256)}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fetch returns the local path of the weights registered under name,
// downloading them into the cache if needed. Files with a registered
// digest are verified on every call.
func (r *Registry) Fetch(ctx context.Context, name string) (string, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return "", errors.Errorf("zoo: no weights registered under %q", name)
	}
	filePath, err := r.cachePath(e.File)
	if err != nil {
		return "", err
	}
	if !fileExists(filePath) {
		if r.cfg.BaseURL == "" {
			return "", errors.Errorf("zoo: %q is not cached in %s and %s is not set", name, filepath.Dir(filePath), EnvWeightsURL)
		}
		src := strings.TrimSuffix(r.cfg.BaseURL, "/") + "/" + e.File
		if err := r.downloadIfMissing(ctx, src, filePath); err != nil {
			return "", err
		}
	}
	if e.SHA256 == "" {
		return filePath, nil
	}
	sum, err := serialization.FileChecksum(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "zoo: checksum of %q", filePath)
	}
	if sum != e.SHA256 {
		return "", errors.Wrapf(serialization.ErrChecksumMismatch,
			"zoo: %q has sha256 %s, expected %s", filePath, sum, e.SHA256)
	}
	return filePath, nil
}

// StateDict fetches the weights registered under name and decodes them.
func (r *Registry) StateDict(ctx context.Context, name string) (map[string]*tensor.RawTensor, error) {
	filePath, err := r.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	state, _, err := serialization.ReadFile(filePath, serialization.ReaderOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "zoo: loading %q", filePath)
	}
	return state, nil
}

// CacheURL downloads rawURL into the cache unless a file with the same
// base name is already there, and returns the local path.
func (r *Registry) CacheURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "zoo: invalid url %q", rawURL)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return "", errors.Errorf("zoo: url %q does not name a file", rawURL)
	}
	filePath, err := r.cachePath(base)
	if err != nil {
		return "", err
	}
	if err := r.downloadIfMissing(ctx, rawURL, filePath); err != nil {
		return "", err
	}
	klog.V(1).Infof("url %s cached in %s", rawURL, filePath)
	return filePath, nil
}

func (r *Registry) cachePath(file string) (string, error) {
	dir, err := expandHome(r.cfg.CacheDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(file)), nil
}

func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "zoo: failed to find home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}
