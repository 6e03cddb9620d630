package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func key(h string) Key { return Key{Scheme: "http", Host: h, Port: "80"} }

func TestGetReusesIdleLIFO(t *testing.T) {
	p := New[int](Config{MaxPerKey: 4, MaxTotal: 4})
	k := key("a")

	res1, _, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, res1.NeedOpen)
	res1.NeedOpen.Value = 1

	res2, _, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, res2.NeedOpen)
	res2.NeedOpen.Value = 2

	p.Put(res1.NeedOpen, false)
	p.Put(res2.NeedOpen, false)

	// LIFO: the most recently released (res2, value 2) comes back first.
	res3, _, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, res3.Idle)
	require.Equal(t, 2, res3.Idle.Value)
}

func TestPerKeyAndTotalCaps(t *testing.T) {
	p := New[int](Config{MaxPerKey: 1, MaxTotal: 2})
	a, b := key("a"), key("b")

	ra, _, err := p.Get(a)
	require.NoError(t, err)
	require.NotNil(t, ra.NeedOpen)

	rb, _, err := p.Get(b)
	require.NoError(t, err)
	require.NotNil(t, rb.NeedOpen)

	// Third get for a new key should wait: max_total reached.
	rc, w, err := p.Get(key("c"))
	require.NoError(t, err)
	require.Nil(t, rc.Idle)
	require.Nil(t, rc.NeedOpen)
	require.NotNil(t, w)

	stats := p.Stats()
	require.Equal(t, 2, stats.NumTotal)
}

func TestWaiterWakesOnEvictionAcrossKeys(t *testing.T) {
	// Scenario from spec.md §8.6: A and B hold one resource each, filling
	// max_total=2 (max_per_key=2), then get(A) waits; releasing B with
	// close=true wakes the A-waiter with a need_open for key A.
	p := New[int](Config{MaxPerKey: 2, MaxTotal: 2})
	a, b := key("a"), key("b")

	ra1, _, err := p.Get(a)
	require.NoError(t, err)
	require.NotNil(t, ra1.NeedOpen)

	rb1, _, err := p.Get(b)
	require.NoError(t, err)
	require.NotNil(t, rb1.NeedOpen)

	_, w, err := p.Get(a)
	require.NoError(t, err)
	require.NotNil(t, w)

	done := make(chan GetResult[int], 1)
	go func() {
		res, err := w.Wait(context.Background())
		require.NoError(t, err)
		done <- res
	}()

	put := p.Put(rb1.NeedOpen, true)
	require.NotNil(t, put.NeedClose)

	got := <-done
	require.NotNil(t, got.NeedOpen)
	require.Equal(t, a, got.NeedOpen.Key)

	stats := p.Stats()
	require.Equal(t, 2, stats.NumTotal)
	require.Equal(t, 2, stats.PerKey[a])
	require.Equal(t, 0, stats.PerKey[b])
}

func TestWaitersAreFIFOPerKey(t *testing.T) {
	p := New[int](Config{MaxPerKey: 1, MaxTotal: 1})
	k := key("a")

	r, _, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, r.NeedOpen)

	const n = 3
	var waiters [n]*Waiter[int]
	for i := 0; i < n; i++ {
		_, w, err := p.Get(k)
		require.NoError(t, err)
		require.NotNil(t, w)
		waiters[i] = w
	}

	// Each waiter, once served, immediately releases again so the next in
	// line can be woken. The order they're served in must match FIFO.
	order := make(chan int, n)
	for i, w := range waiters {
		i, w := i, w
		go func() {
			res, err := w.Wait(context.Background())
			if err != nil || res.Idle == nil {
				order <- -1
				return
			}
			order <- i
			p.Put(res.Idle, false)
		}()
	}

	p.Put(r.NeedOpen, false)

	for i := 0; i < n; i++ {
		require.Equal(t, i, <-order)
	}
}

func TestClosePoolFailsOutstandingWaiters(t *testing.T) {
	p := New[int](Config{MaxPerKey: 1, MaxTotal: 1})
	k := key("a")

	r, _, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, r.NeedOpen)

	_, w, err := p.Get(k)
	require.NoError(t, err)
	require.NotNil(t, w)

	toClose, failed := p.Close(false)
	require.Empty(t, toClose)
	require.Len(t, failed, 1)

	_, gerr := w.Wait(context.Background())
	require.ErrorIs(t, gerr, ErrClosed)

	_, _, err = p.Get(k)
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseForceReturnsBusyResources(t *testing.T) {
	p := New[int](Config{MaxPerKey: 2, MaxTotal: 2})
	k := key("a")

	r1, _, err := p.Get(k)
	require.NoError(t, err)
	r2, _, err := p.Get(k)
	require.NoError(t, err)
	_ = r1
	_ = r2

	toClose, _ := p.Close(true)
	require.Len(t, toClose, 2)
}

func TestPutIdempotentAfterClose(t *testing.T) {
	p := New[int](Config{MaxPerKey: 1, MaxTotal: 1})
	k := key("a")

	r, _, err := p.Get(k)
	require.NoError(t, err)

	res := r.NeedOpen
	put1 := p.Put(res, false)
	require.Nil(t, put1.NeedClose)

	// close() after release() is a no-op from the caller's view.
	put2 := p.Put(res, true)
	require.Nil(t, put2.NeedClose)
}
