package bollywood

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooperDrainRunsExternalBeforeActorMessages(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 1
	m := NewManager(cfg)
	defer m.Close()

	lp := NewLooper(m)

	var order []string
	lp.Actor().Async(func() { order = append(order, "actor") })
	lp.PostExternal(func() { order = append(order, "external") })

	n := lp.Drain()
	require.Equal(t, 2, n)
	assert.Equal(t, []string{"external", "actor"}, order)
}

func TestLooperDrainReturnsZeroWhenEmpty(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 1
	m := NewManager(cfg)
	defer m.Close()

	lp := NewLooper(m)
	assert.Zero(t, lp.Drain())
}

func TestLooperDrainPanicsFromSecondGoroutine(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.WorkerCount = 1
	m := NewManager(cfg)
	defer m.Close()

	lp := NewLooper(m)
	lp.Drain()

	var panicked atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if recover() != nil {
				panicked.Store(true)
			}
		}()
		lp.Drain()
	}()
	<-done
	assert.True(t, panicked.Load(), "Drain from a second goroutine should panic")
}
