package bollywood

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRunExitsWhenIdle(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 4
	m := NewManager(cfg)
	defer m.Close()

	const actors = 16
	const perActor = 625 // 16 * 625 = 10_000

	var total int64
	var wg sync.WaitGroup
	wg.Add(actors * perActor)

	pids := make([]*Actor, actors)
	for i := range pids {
		pids[i] = m.Spawn(0)
	}

	for _, a := range pids {
		a := a
		for i := 0; i < perActor; i++ {
			a.Async(func() {
				atomic.AddInt64(&total, 1)
				wg.Done()
			})
		}
	}

	done := make(chan struct{})
	go func() {
		m.Run(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run(true) never returned")
	}

	wg.Wait()
	require.EqualValues(t, actors*perActor, atomic.LoadInt64(&total))
}

func TestManagerStealingUnderContention(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 4
	m := NewManager(cfg)
	defer m.Close()

	hot := m.Spawn(LockToThread)
	light := make([]*Actor, 7)
	for i := range light {
		light[i] = m.Spawn(0)
	}

	var hotDone sync.WaitGroup
	block := make(chan struct{})
	hotDone.Add(1)
	hot.Async(func() {
		<-block
		hotDone.Done()
	})

	var lightWg sync.WaitGroup
	lightWg.Add(len(light))
	for _, a := range light {
		a := a
		a.Async(func() { lightWg.Done() })
	}

	waitOK := make(chan struct{})
	go func() {
		lightWg.Wait()
		close(waitOK)
	}()

	select {
	case <-waitOK:
	case <-time.After(2 * time.Second):
		t.Fatal("light actors starved behind a pinned actor blocked on a worker")
	}

	close(block)
	hotDone.Wait()
}

func TestManagerLoadBalancerGrowsPool(t *testing.T) {
	cfg := ManagerConfig{WorkerCount: 2, MaxWorkerCount: 2 * 8, LoadBalancerPeriod: 20 * time.Millisecond}
	m := NewManager(cfg)
	defer m.Close()

	block := make([]chan struct{}, cfg.WorkerCount)
	for i := range block {
		block[i] = make(chan struct{})
	}

	// Two pinned actors per channel: round-robin assignment gives each
	// worker one blocked actor running and another queued behind it,
	// which is what the load balancer counts as stuck.
	for _, ch := range block {
		ch := ch
		for j := 0; j < 2; j++ {
			a := m.Spawn(LockToThread)
			a.Async(func() { <-ch })
		}
	}

	assert.Eventually(t, func() bool {
		return m.Stats().WorkerCount > cfg.WorkerCount
	}, 2*time.Second, 10*time.Millisecond, "load balancer never grew the pool while workers were stuck")

	for _, ch := range block {
		close(ch)
	}
}

func TestManagerRemoveCancelsTimers(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 2
	m := NewManager(cfg)
	defer m.Close()

	a := m.Spawn(0)
	var fired atomic.Bool
	_, err := m.AddTimer(a, 30*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)

	m.Remove(a)
	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load(), "timer fired on a removed actor")
}
