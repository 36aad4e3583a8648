package distributed

import (
	"context"
	"encoding/gob"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// frame is the single message type exchanged by TCPGroup members.
type frame struct {
	Session  string
	Seq      uint64
	Op       string
	Rank     int
	Size     int
	Data     []byte
	Values   []float64
	Gathered [][]byte
	Err      string
}

const (
	opHello   = "hello"
	opWelcome = "welcome"
)

type peer struct {
	conn net.Conn
	enc  *gob.Encoder
	dec  *gob.Decoder
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, enc: gob.NewEncoder(conn), dec: gob.NewDecoder(conn)}
}

func (p *peer) send(f *frame) error { return p.enc.Encode(f) }

func (p *peer) recv() (*frame, error) {
	f := new(frame)
	if err := p.dec.Decode(f); err != nil {
		return nil, err
	}
	return f, nil
}

// TCPGroup is a process group over TCP in a star topology: rank 0 accepts
// one connection per other rank and computes every collective.
//
// Each group run is tagged with a session id chosen by rank 0, and every
// frame carries a sequence number, so ranks that drift out of step fail
// with an error instead of mixing payloads.
type TCPGroup struct {
	rank, size int
	session    string

	mu       sync.Mutex
	seq      uint64
	listener net.Listener
	peers    []*peer // rank 0 only, indexed by rank
	master   *peer   // ranks > 0
}

// NewTCPGroup joins the group rendezvousing at addr. Rank 0 listens on
// addr; the others dial it, retrying until ctx is done.
func NewTCPGroup(ctx context.Context, addr string, rank, size int) (*TCPGroup, error) {
	if size < 1 || rank < 0 || rank >= size {
		return nil, errors.Errorf("distributed: invalid rank %d for world size %d", rank, size)
	}
	if rank == 0 {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "distributed: failed to listen on %s", addr)
		}
		return ServeTCP(ctx, ln, size)
	}
	return DialTCP(ctx, addr, rank, size)
}

// ServeTCP makes the caller rank 0 of a group of size ranks, accepting
// the other ranks on ln. It returns once every rank has joined.
func ServeTCP(ctx context.Context, ln net.Listener, size int) (*TCPGroup, error) {
	g := &TCPGroup{
		rank:     0,
		size:     size,
		session:  uuid.NewString(),
		listener: ln,
		peers:    make([]*peer, size),
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for joined := 1; joined < size; {
		conn, err := ln.Accept()
		if err != nil {
			_ = g.Close()
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, errors.Wrapf(err, "distributed: waiting for %d more ranks", size-joined)
		}
		p := newPeer(conn)
		hello, err := p.recv()
		if err != nil {
			_ = conn.Close()
			klog.Warningf("distributed: dropping connection from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		if hello.Op != opHello || hello.Size != size || hello.Rank <= 0 || hello.Rank >= size || g.peers[hello.Rank] != nil {
			_ = p.send(&frame{Op: opWelcome, Err: "rejected: bad rank or world size"})
			_ = conn.Close()
			klog.Warningf("distributed: rejected %s claiming rank %d of %d", conn.RemoteAddr(), hello.Rank, hello.Size)
			continue
		}
		if err := p.send(&frame{Op: opWelcome, Session: g.session}); err != nil {
			_ = conn.Close()
			continue
		}
		g.peers[hello.Rank] = p
		joined++
		klog.V(1).Infof("distributed: rank %d joined from %s", hello.Rank, conn.RemoteAddr())
	}
	return g, nil
}

// DialTCP joins the group served at addr as rank.
func DialTCP(ctx context.Context, addr string, rank, size int) (*TCPGroup, error) {
	var d net.Dialer
	var conn net.Conn
	for {
		var err error
		conn, err = d.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(err, "distributed: rank %d could not reach %s", rank, addr)
		case <-time.After(100 * time.Millisecond):
		}
	}

	p := newPeer(conn)
	if err := p.send(&frame{Op: opHello, Rank: rank, Size: size}); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "distributed: handshake")
	}
	welcome, err := p.recv()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "distributed: handshake")
	}
	if welcome.Err != "" {
		_ = conn.Close()
		return nil, errors.Errorf("distributed: rank %d %s", rank, welcome.Err)
	}
	return &TCPGroup{rank: rank, size: size, session: welcome.Session, master: p}, nil
}

// Rank returns this process's rank.
func (g *TCPGroup) Rank() int { return g.rank }

// Size returns the world size.
func (g *TCPGroup) Size() int { return g.size }

// Session returns the id rank 0 assigned to this group run.
func (g *TCPGroup) Session() string { return g.session }

// Addr returns the listening address on rank 0, nil elsewhere.
func (g *TCPGroup) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

func (g *TCPGroup) collective(op string, data []byte, values []float64) (*frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.peers == nil && g.master == nil {
		return nil, ErrGroupClosed
	}
	g.seq++

	if g.rank != 0 {
		req := &frame{Session: g.session, Seq: g.seq, Op: op, Rank: g.rank, Data: data, Values: values}
		if err := g.master.send(req); err != nil {
			return nil, errors.Wrapf(err, "distributed: rank %d sending %s", g.rank, op)
		}
		reply, err := g.master.recv()
		if err != nil {
			return nil, errors.Wrapf(err, "distributed: rank %d waiting for %s", g.rank, op)
		}
		if reply.Err != "" {
			return nil, errors.New(reply.Err)
		}
		if reply.Seq != g.seq || reply.Op != op {
			return nil, errors.Errorf("distributed: rank %d expected %s #%d, got %s #%d", g.rank, op, g.seq, reply.Op, reply.Seq)
		}
		return reply, nil
	}

	bytesParts := make([][]byte, g.size)
	floatParts := make([][]float64, g.size)
	bytesParts[0], floatParts[0] = data, values
	var failure error
	for rank := 1; rank < g.size; rank++ {
		req, err := g.peers[rank].recv()
		if err != nil {
			return nil, errors.Wrapf(err, "distributed: receiving %s from rank %d", op, rank)
		}
		if failure == nil && (req.Session != g.session || req.Seq != g.seq || req.Op != op) {
			failure = errors.Errorf("distributed: rank %d sent %s #%d during %s #%d", rank, req.Op, req.Seq, op, g.seq)
		}
		bytesParts[rank], floatParts[rank] = req.Data, req.Values
	}

	reply := &frame{Session: g.session, Seq: g.seq, Op: op}
	if failure == nil {
		reply.Gathered, reply.Values, failure = reduceParts(op, bytesParts, floatParts)
	}
	if failure != nil {
		reply = &frame{Session: g.session, Seq: g.seq, Op: op, Err: failure.Error()}
	}
	for rank := 1; rank < g.size; rank++ {
		if err := g.peers[rank].send(reply); err != nil {
			return nil, errors.Wrapf(err, "distributed: replying %s to rank %d", op, rank)
		}
	}
	if failure != nil {
		return nil, failure
	}
	return reply, nil
}

// AllGather returns every rank's data, indexed by rank.
func (g *TCPGroup) AllGather(data []byte) ([][]byte, error) {
	reply, err := g.collective(opGather, data, nil)
	if err != nil {
		return nil, err
	}
	return reply.Gathered, nil
}

// AllReduceSum replaces values with the sum over all ranks.
func (g *TCPGroup) AllReduceSum(values []float64) error {
	reply, err := g.collective(opReduce, nil, values)
	if err != nil {
		return err
	}
	copy(values, reply.Values)
	return nil
}

// Barrier blocks until every rank has called Barrier.
func (g *TCPGroup) Barrier() error {
	_, err := g.collective(opBarrier, nil, nil)
	return err
}

// Close shuts the connections down.
func (g *TCPGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for _, p := range g.peers {
		if p != nil {
			keep(p.conn.Close())
		}
	}
	if g.master != nil {
		keep(g.master.conn.Close())
	}
	if g.listener != nil {
		_ = g.listener.Close()
	}
	g.peers, g.master, g.listener = nil, nil, nil
	return first
}
