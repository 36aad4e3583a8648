package distributed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ProcessGroup is the transport the collectives run over.
//
// Every rank must call the same collectives in the same order; a rank that
// skips one leaves the others blocked. Calls never time out.
type ProcessGroup interface {
	// Rank of the calling process, in [0, Size()).
	Rank() int

	// Size is the number of processes in the group.
	Size() int

	// AllGather returns every rank's data, indexed by rank.
	AllGather(data []byte) ([][]byte, error)

	// AllReduceSum replaces values with their element-wise sum over all
	// ranks. Every rank must pass the same length.
	AllReduceSum(values []float64) error

	// Barrier blocks until every rank has reached it.
	Barrier() error

	// Close releases the transport.
	Close() error
}

// ErrGroupClosed is returned by collectives on a closed group.
var ErrGroupClosed = errors.New("distributed: process group closed")

// collective kinds, checked so mismatched call orders fail instead of
// mixing payloads.
const (
	opGather  = "all_gather"
	opReduce  = "all_reduce_sum"
	opBarrier = "barrier"
)

// reduceParts combines per-rank contributions of one collective.
func reduceParts(op string, bytesParts [][]byte, floatParts [][]float64) (gathered [][]byte, sum []float64, err error) {
	switch op {
	case opGather:
		gathered = make([][]byte, len(bytesParts))
		for i, p := range bytesParts {
			gathered[i] = append([]byte(nil), p...)
		}
	case opReduce:
		n := len(floatParts[0])
		sum = make([]float64, n)
		for rank, p := range floatParts {
			if len(p) != n {
				return nil, nil, errors.Errorf("distributed: rank %d reduced %d values, rank 0 reduced %d", rank, len(p), n)
			}
			floats.Add(sum, p)
		}
	case opBarrier:
	default:
		return nil, nil, errors.Errorf("distributed: unknown collective %q", op)
	}
	return gathered, sum, nil
}

// round is one in-flight collective of a LocalGroup.
type round struct {
	op         string
	arrived    int
	bytesParts [][]byte
	floatParts [][]float64
	gathered   [][]byte
	sum        []float64
	err        error
	done       chan struct{}
}

type localHub struct {
	size int

	mu      sync.Mutex
	current *round
}

func (h *localHub) newRound(op string) *round {
	return &round{
		op:         op,
		bytesParts: make([][]byte, h.size),
		floatParts: make([][]float64, h.size),
		done:       make(chan struct{}),
	}
}

// LocalGroup is one rank of an in-process group: every rank is a goroutine
// sharing memory with the others. It simulates multi-process runs in
// tests and single-machine tools.
type LocalGroup struct {
	hub    *localHub
	rank   int
	closed atomic.Bool
}

// NewLocalGroup returns the size ranks of a new in-process group.
func NewLocalGroup(size int) []*LocalGroup {
	if size < 1 {
		panic(fmt.Sprintf("distributed: group size must be positive, got %d", size))
	}
	hub := &localHub{size: size}
	ranks := make([]*LocalGroup, size)
	for i := range ranks {
		ranks[i] = &LocalGroup{hub: hub, rank: i}
	}
	return ranks
}

// Rank returns this member's rank.
func (g *LocalGroup) Rank() int { return g.rank }

// Size returns the number of ranks.
func (g *LocalGroup) Size() int { return g.hub.size }

func (g *LocalGroup) join(op string, data []byte, values []float64) (*round, error) {
	if g.closed.Load() {
		return nil, ErrGroupClosed
	}
	h := g.hub
	h.mu.Lock()
	if h.current == nil {
		h.current = h.newRound(op)
	}
	r := h.current
	if r.op != op {
		r.err = errors.Errorf("distributed: rank %d called %s while the group is in %s", g.rank, op, r.op)
	}
	r.bytesParts[g.rank] = data
	r.floatParts[g.rank] = values
	r.arrived++
	if r.arrived == h.size {
		if r.err == nil {
			r.gathered, r.sum, r.err = reduceParts(r.op, r.bytesParts, r.floatParts)
		}
		h.current = nil
		close(r.done)
	}
	h.mu.Unlock()

	<-r.done
	return r, r.err
}

// AllGather returns every rank's data, indexed by rank.
func (g *LocalGroup) AllGather(data []byte) ([][]byte, error) {
	r, err := g.join(opGather, data, nil)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(r.gathered))
	for i, p := range r.gathered {
		out[i] = append([]byte(nil), p...)
	}
	return out, nil
}

// AllReduceSum replaces values with the sum over all ranks.
func (g *LocalGroup) AllReduceSum(values []float64) error {
	r, err := g.join(opReduce, nil, values)
	if err != nil {
		return err
	}
	copy(values, r.sum)
	return nil
}

// Barrier blocks until every rank has called Barrier.
func (g *LocalGroup) Barrier() error {
	_, err := g.join(opBarrier, nil, nil)
	return err
}

// Close detaches this rank; its later collectives fail with
// ErrGroupClosed. The other ranks are unaffected.
func (g *LocalGroup) Close() error {
	g.closed.Store(true)
	return nil
}
