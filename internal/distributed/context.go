// Package distributed coordinates data-parallel training across processes:
// rank queries, barriers, gathering arbitrary values, reducing metric
// dictionaries and gating console output to the main process.
//
// A Context is created once at startup (InitFromEnv) and passed to the code
// that needs it. With world size 1 every collective is an identity.
package distributed

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/vision/internal/tensor"
)

// Context is the process-wide view of the distributed run.
type Context struct {
	group     ProcessGroup // nil when not distributed
	localRank int
	isMaster  bool
	out       io.Writer
}

// SingleProcess returns a context for a non-distributed run.
func SingleProcess() *Context {
	return &Context{isMaster: true, out: os.Stdout}
}

// NewContext wraps an established group. Printing is gated to rank 0.
func NewContext(group ProcessGroup, localRank int) *Context {
	return &Context{group: group, localRank: localRank, isMaster: group.Rank() == 0, out: os.Stdout}
}

// SetOutput redirects Printf and Println, os.Stdout by default.
func (c *Context) SetOutput(w io.Writer) { c.out = w }

// SetupPrinting enables console output only when isMaster is set. Forced
// prints are always emitted. It is meant to be called once at startup.
func (c *Context) SetupPrinting(isMaster bool) { c.isMaster = isMaster }

// Initialized reports whether a process group is active.
func (c *Context) Initialized() bool { return c.group != nil }

// Group returns the underlying process group, nil when not distributed.
func (c *Context) Group() ProcessGroup { return c.group }

// Rank returns the global rank, 0 when not distributed.
func (c *Context) Rank() int {
	if c.group == nil {
		return 0
	}
	return c.group.Rank()
}

// WorldSize returns the number of processes, 1 when not distributed.
func (c *Context) WorldSize() int {
	if c.group == nil {
		return 1
	}
	return c.group.Size()
}

// LocalRank returns the rank within the node.
func (c *Context) LocalRank() int { return c.localRank }

// IsMainProcess reports whether this is rank 0.
func (c *Context) IsMainProcess() bool { return c.Rank() == 0 }

// Barrier synchronizes all processes.
func (c *Context) Barrier() error {
	if c.WorldSize() == 1 {
		return nil
	}
	return c.group.Barrier()
}

// Close leaves the process group.
func (c *Context) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

// AllGatherBytes gathers one byte slice per rank. Payloads of different
// sizes are padded to the largest before the exchange and trimmed after.
func (c *Context) AllGatherBytes(payload []byte) ([][]byte, error) {
	if c.WorldSize() == 1 {
		return [][]byte{payload}, nil
	}

	// Exchange sizes first.
	local := binary.LittleEndian.AppendUint64(nil, uint64(len(payload)))
	sizeParts, err := c.group.AllGather(local)
	if err != nil {
		return nil, errors.WithMessage(err, "gathering payload sizes")
	}
	sizes := make([]int, len(sizeParts))
	maxSize := 0
	for i, p := range sizeParts {
		if len(p) != 8 {
			return nil, errors.Errorf("rank %d sent a %d-byte size", i, len(p))
		}
		//nolint:gosec // G115: sizes are lengths of in-memory payloads
		sizes[i] = int(binary.LittleEndian.Uint64(p))
		maxSize = max(maxSize, sizes[i])
	}

	padded := make([]byte, maxSize)
	copy(padded, payload)
	parts, err := c.group.AllGather(padded)
	if err != nil {
		return nil, errors.WithMessage(err, "gathering payloads")
	}
	out := make([][]byte, len(parts))
	for i, p := range parts {
		if len(p) < sizes[i] {
			return nil, errors.Errorf("rank %d sent %d bytes, announced %d", i, len(p), sizes[i])
		}
		out[i] = p[:sizes[i]]
	}
	return out, nil
}

// AllGather collects payload from every rank, indexed by rank. Values are
// gob-encoded for the exchange, so T must be gob-encodable.
func AllGather[T any](c *Context, payload T) ([]T, error) {
	if c.WorldSize() == 1 {
		return []T{payload}, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, errors.Wrap(err, "encoding all_gather payload")
	}
	parts, err := c.AllGatherBytes(buf.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]T, len(parts))
	for i, p := range parts {
		if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&out[i]); err != nil {
			return nil, errors.Wrapf(err, "decoding all_gather payload of rank %d", i)
		}
	}
	return out, nil
}

// ReduceDict sums every value of input across processes, or averages them
// when average is set, so all ranks end up with the same dictionary. Keys
// are reduced in sorted order; every rank must pass the same keys and
// shapes. With world size 1 the input map itself is returned.
func (c *Context) ReduceDict(input map[string]*tensor.RawTensor, average bool) (map[string]*tensor.RawTensor, error) {
	worldSize := c.WorldSize()
	if worldSize < 2 {
		return input, nil
	}

	names := make([]string, 0, len(input))
	total := 0
	for name, v := range input {
		if !v.DType().IsFloat() {
			return nil, errors.Errorf("reduce_dict: %q has non-float dtype %s", name, v.DType())
		}
		names = append(names, name)
		total += v.NumElements()
	}
	sort.Strings(names)

	flat := make([]float64, 0, total)
	for _, name := range names {
		flat = append(flat, input[name].Float64s()...)
	}
	if err := c.group.AllReduceSum(flat); err != nil {
		return nil, errors.WithMessage(err, "reduce_dict")
	}
	if average {
		floats.Scale(1/float64(worldSize), flat)
	}

	reduced := make(map[string]*tensor.RawTensor, len(names))
	offset := 0
	for _, name := range names {
		v := input[name].Clone()
		n := v.NumElements()
		v.SetFloat64s(flat[offset : offset+n])
		reduced[name] = v
		offset += n
	}
	return reduced, nil
}

// Printf writes to the console on the main process only.
func (c *Context) Printf(format string, args ...any) {
	if c.isMaster {
		_, _ = fmt.Fprintf(c.out, format, args...)
	}
}

// Println writes to the console on the main process only.
func (c *Context) Println(args ...any) {
	if c.isMaster {
		_, _ = fmt.Fprintln(c.out, args...)
	}
}

// ForcePrintf writes to the console on every process.
func (c *Context) ForcePrintf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// ForcePrintln writes to the console on every process.
func (c *Context) ForcePrintln(args ...any) {
	_, _ = fmt.Fprintln(c.out, args...)
}

// SaveOnMaster runs save on the main process only.
func (c *Context) SaveOnMaster(save func() error) error {
	if !c.IsMainProcess() {
		return nil
	}
	return save()
}
