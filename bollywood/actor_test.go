package bollywood

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, workers int) *Manager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = workers
	cfg.MaxWorkerCount = workers * 4
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestActorOrdersMessagesPerActor(t *testing.T) {
	m := newTestManager(t, 4)
	a := m.Spawn(0)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	const n = 10_000
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		a.Async(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v, "message %d executed out of order", i)
	}
}

func TestActorLockExcludesAsync(t *testing.T) {
	m := newTestManager(t, 4)
	a := m.Spawn(0)

	a.Lock()
	defer a.Unlock()

	var ran atomic.Bool
	a.Async(func() { ran.Store(true) })

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "async message ran while actor was manually locked")
}

func TestActorUnlockFlushesPending(t *testing.T) {
	m := newTestManager(t, 4)
	a := m.Spawn(0)

	a.Lock()
	done := make(chan struct{})
	a.Async(func() { close(done) })
	a.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pending async message never ran after Unlock")
	}
}

func TestActorIsIdle(t *testing.T) {
	m := newTestManager(t, 2)
	a := m.Spawn(0)
	assert.True(t, a.IsIdle())

	block := make(chan struct{})
	release := make(chan struct{})
	a.Async(func() { close(block); <-release })
	<-block
	assert.False(t, a.IsIdle())
	close(release)

	assert.Eventually(t, a.IsIdle, time.Second, time.Millisecond)
}

func TestActorClearAllMessages(t *testing.T) {
	m := newTestManager(t, 2)
	a := m.Spawn(0)

	block := make(chan struct{})
	release := make(chan struct{})
	a.Async(func() { close(block); <-release })
	<-block

	var ran atomic.Bool
	a.Async(func() { ran.Store(true) })
	a.ClearAllMessages()
	close(release)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load(), "cleared message still ran")
}

func TestAsyncValidityCheckPanicsWithoutLock(t *testing.T) {
	m := newTestManager(t, 1)
	a := m.Spawn(0)
	assert.Panics(t, func() { a.AsyncValidityCheck() })
}

func TestAsyncValidityCheckPassesUnderLock(t *testing.T) {
	m := newTestManager(t, 1)
	a := m.Spawn(0)
	a.Lock()
	defer a.Unlock()
	assert.NotPanics(t, func() { a.AsyncValidityCheck() })
}

func TestPingPongBetweenTwoPinnedActors(t *testing.T) {
	m := newTestManager(t, 4)
	a := m.Spawn(LockToThread)
	b := m.Spawn(LockToThread)

	const rounds = 10_000
	var count int64
	done := make(chan struct{})

	var ping func()
	var pong func()
	ping = func() {
		n := atomic.AddInt64(&count, 1)
		if n >= rounds {
			close(done)
			return
		}
		b.Async(pong)
	}
	pong = func() {
		n := atomic.AddInt64(&count, 1)
		if n >= rounds {
			close(done)
			return
		}
		a.Async(ping)
	}

	a.Async(ping)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("ping-pong stalled at %d/%d", atomic.LoadInt64(&count), rounds)
	}
}
