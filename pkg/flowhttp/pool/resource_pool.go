// Package pool implements a generic, bounded resource pool with per-key and
// global caps, fair FIFO waiter queues, and safe close semantics.
//
// It has no notion of sockets, HTTP, or TLS — the transport package builds
// the connection pool on top of it by storing *transport.Conn as the pool's
// value type. Everything here executes under a single mutex with no I/O;
// callers perform I/O (dialing, closing) themselves, driven by the intents
// returned from Get/Put/Close.
package pool

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Get (and delivered to any waiting Waiter) once
// the pool has been closed.
var ErrClosed = errors.New("pool: closed")

// Key buckets resources the way spec.md's PoolKey does: scheme+host+port.
// It is comparable, so it can be used directly as a map key.
type Key struct {
	Scheme string
	Host   string
	Port   string
}

type state int

const (
	stateBusy state = iota
	stateIdle
	stateClosed
)

// Resource is an opaque handle owned by the Pool. Value is populated by the
// caller on first acquisition (for flowhttp, the live *transport.Conn).
type Resource[T any] struct {
	Key   Key
	Value T

	state state
	pool  *Pool[T]
}

// GetResult is the tagged variant returned by Get and delivered to a
// resolved Waiter. Idle, or (NeedOpen with an optional NeedClose), or Err
// is set — never more than one case at a time.
type GetResult[T any] struct {
	Idle      *Resource[T]
	NeedOpen  *Resource[T]
	NeedClose *Resource[T]
	Err       error
}

// Waiter is a single-assignment future a caller awaits when Get cannot be
// satisfied immediately. It is resolved at most once.
type Waiter[T any] struct {
	key  Key
	ch   chan GetResult[T]
	pool *Pool[T]
}

// Wait blocks until the waiter is resolved or ctx is done. On cancellation
// it deregisters itself from the pool's queue; a resolution racing with
// cancellation is tolerated by draining the channel once more (non-blocking).
func (w *Waiter[T]) Wait(ctx context.Context) (GetResult[T], error) {
	select {
	case res := <-w.ch:
		return res, res.Err
	case <-ctx.Done():
		w.pool.cancelWaiter(w)
		// A resolution may have landed concurrently with cancellation;
		// honor it if so instead of discarding a live resource.
		select {
		case res := <-w.ch:
			return res, res.Err
		default:
		}
		return GetResult[T]{}, ctx.Err()
	}
}

// PutResult tells the Put caller what physical cleanup it must perform.
type PutResult[T any] struct {
	// NeedClose is set when the resource just released must be closed by
	// the caller (explicit close=true, or the pool itself is closed).
	NeedClose *Resource[T]
}

// Config bounds the pool.
type Config struct {
	MaxPerKey int
	MaxTotal  int
}

// Pool is the generic bounded resource pool described in spec.md §4.1.
type Pool[T any] struct {
	cfg Config

	mu sync.Mutex

	idle    map[Key][]*Resource[T] // LIFO per key (back of slice = most recent)
	numIdle int

	sizePerKey map[Key]int // busy+idle count per key
	numTotal   int

	busy map[*Resource[T]]struct{} // registry of currently-busy resources, for force-close

	waiters  map[Key][]*Waiter[T]
	keyOrder []Key // deterministic insertion order for cross-key scans
	keySeen  map[Key]bool

	closed bool
}

// New creates a Pool with the given per-key and global caps.
func New[T any](cfg Config) *Pool[T] {
	return &Pool[T]{
		cfg:        cfg,
		idle:       make(map[Key][]*Resource[T]),
		sizePerKey: make(map[Key]int),
		busy:       make(map[*Resource[T]]struct{}),
		waiters:    make(map[Key][]*Waiter[T]),
		keySeen:    make(map[Key]bool),
	}
}

func (p *Pool[T]) noteKey(key Key) {
	if !p.keySeen[key] {
		p.keySeen[key] = true
		p.keyOrder = append(p.keyOrder, key)
	}
}

// Get implements the admission algorithm of spec.md §4.1: reuse an idle
// resource (LIFO) for key if one exists; otherwise open a new slot if the
// per-key and global budgets allow; otherwise evict an idle resource from
// another key if that unblocks the per-key budget; otherwise enqueue a
// FIFO waiter.
func (p *Pool[T]) Get(key Key) (GetResult[T], *Waiter[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return GetResult[T]{}, nil, ErrClosed
	}
	p.noteKey(key)

	if res, ok := p.popIdleLocked(key); ok {
		return GetResult[T]{Idle: res}, nil, nil
	}

	if p.sizePerKey[key] < p.cfg.MaxPerKey && p.numTotal < p.cfg.MaxTotal {
		res := p.newBusyLocked(key)
		return GetResult[T]{NeedOpen: res}, nil, nil
	}

	if p.sizePerKey[key] < p.cfg.MaxPerKey && p.numIdle > 0 {
		evicted, ok := p.evictIdleLocked()
		if ok {
			res := p.newBusyLocked(key)
			return GetResult[T]{NeedOpen: res, NeedClose: evicted}, nil, nil
		}
	}

	w := &Waiter[T]{key: key, ch: make(chan GetResult[T], 1), pool: p}
	p.waiters[key] = append(p.waiters[key], w)
	return GetResult[T]{}, w, nil
}

// popIdleLocked pops the most-recently-used idle resource for key (LIFO).
func (p *Pool[T]) popIdleLocked(key Key) (*Resource[T], bool) {
	list := p.idle[key]
	if len(list) == 0 {
		return nil, false
	}
	res := list[len(list)-1]
	list = list[:len(list)-1]
	if len(list) == 0 {
		delete(p.idle, key)
	} else {
		p.idle[key] = list
	}
	p.numIdle--
	res.state = stateBusy
	p.busy[res] = struct{}{}
	return res, true
}

// evictIdleLocked evicts one idle resource from the first non-empty key in
// deterministic insertion order, oldest idle entry within that key.
func (p *Pool[T]) evictIdleLocked() (*Resource[T], bool) {
	for _, k := range p.keyOrder {
		list := p.idle[k]
		if len(list) == 0 {
			continue
		}
		res := list[0]
		list = list[1:]
		if len(list) == 0 {
			delete(p.idle, k)
		} else {
			p.idle[k] = list
		}
		p.numIdle--
		p.sizePerKey[k]--
		p.numTotal--
		res.state = stateClosed
		return res, true
	}
	return nil, false
}

func (p *Pool[T]) newBusyLocked(key Key) *Resource[T] {
	p.sizePerKey[key]++
	p.numTotal++
	res := &Resource[T]{Key: key, state: stateBusy, pool: p}
	p.busy[res] = struct{}{}
	return res
}

// Abandon rolls back a NeedOpen reservation that the caller failed to open
// (e.g. ConnectTimeout). It frees the slot and runs the same opportunistic
// wake-up scan a successful Put would.
func (p *Pool[T]) Abandon(res *Resource[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.state == stateClosed {
		return
	}
	res.state = stateClosed
	delete(p.busy, res)
	p.sizePerKey[res.Key]--
	p.numTotal--
	p.wakeOneLocked()
}

// Put releases or closes a busy resource per spec.md §4.1's release
// algorithm: if other waiters want this key, hand the resource straight to
// the oldest one; otherwise place it on the idle LIFO and opportunistically
// wake at most one waiter from another key whose budget now permits opening.
func (p *Pool[T]) Put(res *Resource[T], closeIt bool) PutResult[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.state != stateBusy {
		// Already released or closed by an earlier Put on this same handle;
		// callers (transport.Conn) guard against this too, but the pool
		// must be safe against it on its own.
		return PutResult[T]{}
	}

	if p.closed {
		res.state = stateClosed
		delete(p.busy, res)
		return PutResult[T]{NeedClose: res}
	}

	if closeIt {
		res.state = stateClosed
		delete(p.busy, res)
		p.sizePerKey[res.Key]--
		p.numTotal--
		p.wakeOneLocked()
		return PutResult[T]{NeedClose: res}
	}

	if q := p.waiters[res.Key]; len(q) > 0 {
		w := q[0]
		p.waiters[res.Key] = q[1:]
		// stays busy — ownership transfers directly to the waiter
		res.state = stateBusy
		w.ch <- GetResult[T]{Idle: res}
		return PutResult[T]{}
	}

	res.state = stateIdle
	delete(p.busy, res)
	p.idle[res.Key] = append(p.idle[res.Key], res)
	p.numIdle++
	p.wakeOneLocked()
	return PutResult[T]{}
}

// wakeOneLocked scans keys with pending waiters in deterministic insertion
// order and wakes at most one waiter whose budget now permits admission.
// Must be called with p.mu held.
func (p *Pool[T]) wakeOneLocked() {
	for _, k := range p.keyOrder {
		q := p.waiters[k]
		if len(q) == 0 {
			continue
		}

		if res, ok := p.popIdleLocked(k); ok {
			w := q[0]
			p.waiters[k] = q[1:]
			w.ch <- GetResult[T]{Idle: res}
			return
		}

		if p.sizePerKey[k] < p.cfg.MaxPerKey && p.numTotal < p.cfg.MaxTotal {
			w := q[0]
			p.waiters[k] = q[1:]
			res := p.newBusyLocked(k)
			w.ch <- GetResult[T]{NeedOpen: res}
			return
		}

		if p.sizePerKey[k] < p.cfg.MaxPerKey && p.numIdle > 0 {
			if evicted, ok := p.evictIdleLocked(); ok {
				w := q[0]
				p.waiters[k] = q[1:]
				res := p.newBusyLocked(k)
				w.ch <- GetResult[T]{NeedOpen: res, NeedClose: evicted}
				return
			}
		}
	}
}

// cancelWaiter removes w from its key's queue. A resolution that already
// landed in w.ch before removal is left for Wait to drain.
func (p *Pool[T]) cancelWaiter(w *Waiter[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.waiters[w.key]
	for i, cand := range q {
		if cand == w {
			p.waiters[w.key] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// Close closes the pool: every subsequent Get fails with ErrClosed, and
// every outstanding Waiter is resolved with ErrClosed. With force=true,
// busy resources are also returned for the caller to destroy.
func (p *Pool[T]) Close(force bool) (toClose []*Resource[T], failed []*Waiter[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil
	}
	p.closed = true

	for _, list := range p.idle {
		for _, res := range list {
			res.state = stateClosed
			toClose = append(toClose, res)
		}
	}
	p.idle = make(map[Key][]*Resource[T])
	p.numIdle = 0

	for key, q := range p.waiters {
		for _, w := range q {
			w.ch <- GetResult[T]{Err: ErrClosed}
			failed = append(failed, w)
		}
		delete(p.waiters, key)
	}

	if force {
		for res := range p.busy {
			res.state = stateClosed
			toClose = append(toClose, res)
		}
		p.busy = make(map[*Resource[T]]struct{})
	}

	p.sizePerKey = make(map[Key]int)
	p.numTotal = 0

	return toClose, failed
}

// Stats exposes current counts for tests and diagnostics.
type Stats struct {
	NumTotal int
	NumIdle  int
	NumBusy  int
	PerKey   map[Key]int
}

func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	perKey := make(map[Key]int, len(p.sizePerKey))
	for k, v := range p.sizePerKey {
		perKey[k] = v
	}
	return Stats{
		NumTotal: p.numTotal,
		NumIdle:  p.numIdle,
		NumBusy:  p.numTotal - p.numIdle,
		PerKey:   perKey,
	}
}
