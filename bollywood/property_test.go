package bollywood

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestPropertyPerActorOrdering checks, for randomly generated batches of
// messages spread across a random number of actors, that every actor
// still observes its own messages strictly in enqueue order - the one
// invariant the scheduler must never violate regardless of how work
// happens to be distributed or stolen across workers.
func TestPropertyPerActorOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		workerCount := rapid.IntRange(1, 6).Draw(rt, "workers")
		actorCount := rapid.IntRange(1, 8).Draw(rt, "actors")
		msgCount := rapid.IntRange(0, 200).Draw(rt, "messages")
		assignments := rapid.SliceOfN(rapid.IntRange(0, actorCount-1), msgCount, msgCount).Draw(rt, "assignments")

		cfg := DefaultManagerConfig()
		cfg.WorkerCount = workerCount
		m := NewManager(cfg)
		defer m.Close()

		actors := make([]*Actor, actorCount)
		for i := range actors {
			actors[i] = m.Spawn(0)
		}

		seen := make([][]int, actorCount)
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(msgCount)

		seq := make([]int, actorCount)
		for _, idx := range assignments {
			idx := idx
			n := seq[idx]
			seq[idx]++
			actors[idx].Async(func() {
				mu.Lock()
				seen[idx] = append(seen[idx], n)
				mu.Unlock()
				wg.Done()
			})
		}

		waitOK := make(chan struct{})
		go func() { wg.Wait(); close(waitOK) }()
		select {
		case <-waitOK:
		case <-time.After(10 * time.Second):
			rt.Fatal("messages never completed")
		}

		for i, s := range seen {
			for j, v := range s {
				require.Equalf(rt, j, v, "actor %d executed out of order at position %d", i, j)
			}
		}
	})
}
