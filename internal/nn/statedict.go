package nn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/vision/internal/tensor"
)

var (
	// ErrMissingKey is returned when a state dict lacks an entry the module owns.
	ErrMissingKey = errors.New("missing state dict key")

	// ErrShapeMismatch is returned when a state dict entry has the wrong shape.
	ErrShapeMismatch = errors.New("state dict shape mismatch")
)

// loadEntry copies state[key] into dst, converting between float dtypes.
func loadEntry(dst *tensor.RawTensor, state map[string]*tensor.RawTensor, key string) error {
	src, ok := state[key]
	if !ok || src == nil {
		return fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("%w: %q is %v, module expects %v", ErrShapeMismatch, key, src.Shape(), dst.Shape())
	}
	if src.DType() == dst.DType() {
		return dst.CopyFrom(src)
	}
	if !src.DType().IsFloat() || !dst.DType().IsFloat() {
		return fmt.Errorf("load %q: cannot convert %s to %s", key, src.DType(), dst.DType())
	}
	dst.SetFloat64s(src.Float64s())
	return nil
}

// loadParameters restores each parameter under its own name.
func loadParameters(state map[string]*tensor.RawTensor, params ...*Parameter) error {
	for _, p := range params {
		if p == nil {
			continue
		}
		if err := loadEntry(p.Tensor(), state, p.Name()); err != nil {
			return err
		}
	}
	return nil
}

// PrefixStateDict returns a copy of state with every key prefixed by
// prefix and a dot.
func PrefixStateDict(prefix string, state map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(state))
	for k, v := range state {
		out[prefix+"."+k] = v
	}
	return out
}

// SubStateDict extracts the entries under prefix, with the prefix and its
// dot removed.
func SubStateDict(state map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	p := prefix + "."
	out := make(map[string]*tensor.RawTensor)
	for k, v := range state {
		if rest, ok := strings.CutPrefix(k, p); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// MergeStateDict copies src into dst under prefix.
func MergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}

// SortedKeys returns the keys of state in lexical order.
func SortedKeys(state map[string]*tensor.RawTensor) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
