package bollywood

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidTimerTarget is returned by AddTimer when asked to schedule
// against a nil actor or with a nil message.
var ErrInvalidTimerTarget = errors.New("bollywood: timer target actor or message is nil")

// TimerHandle identifies a single scheduled timer so it can be
// cancelled individually, without affecting any other timer queued
// against the same actor.
type TimerHandle uint64

type timerEntry struct {
	handle    TimerHandle
	actor     *Actor
	deadline  time.Time
	msg       Message
	cancelled bool
}

// timerSystem is the single clock each Manager owns to schedule its
// delayed messages. One long-lived goroutine tracks the entries closest
// to firing and wakes early whenever a new entry jumps the queue or an
// entry is cancelled - the Go equivalent of the original runtime's
// single delay-sorted timer thread, without its periodic-tick polling:
// a dynamically reset timer only wakes when there's actually something
// to do.
type timerSystem struct {
	mu         sync.Mutex
	entries    []*timerEntry // kept sorted ascending by deadline
	nextHandle uint64

	wake wakeup
	quit chan struct{}
	done chan struct{}
}

func newTimerSystem() *timerSystem {
	ts := &timerSystem{
		wake: newWakeup(),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go ts.loop()
	return ts
}

// add schedules msg to be delivered to a's mailbox after d elapses.
func (ts *timerSystem) add(a *Actor, d time.Duration, msg Message) (TimerHandle, error) {
	if a == nil || msg == nil {
		return 0, ErrInvalidTimerTarget
	}

	ts.mu.Lock()
	ts.nextHandle++
	h := ts.nextHandle
	e := &timerEntry{
		handle:   TimerHandle(h),
		actor:    a,
		deadline: time.Now().Add(d),
		msg:      msg,
	}
	ts.insertLocked(e)
	ts.mu.Unlock()

	ts.wake.Notify()
	return e.handle, nil
}

func (ts *timerSystem) insertLocked(e *timerEntry) {
	i := len(ts.entries)
	for i > 0 && ts.entries[i-1].deadline.After(e.deadline) {
		i--
	}
	ts.entries = append(ts.entries, nil)
	copy(ts.entries[i+1:], ts.entries[i:])
	ts.entries[i] = e
}

// cancelHandle cancels one pending timer. A no-op if it already fired
// or was already cancelled.
func (ts *timerSystem) cancelHandle(h TimerHandle) {
	ts.mu.Lock()
	for _, e := range ts.entries {
		if e.handle == h {
			e.cancelled = true
			break
		}
	}
	ts.mu.Unlock()
	ts.wake.Notify()
}

// cancel cancels every pending timer targeting a. Safe to call
// regardless of whether a currently holds its own manual lock - the
// guard here is the timer system's own mutex, not the target actor's.
func (ts *timerSystem) cancel(a *Actor) {
	ts.mu.Lock()
	for _, e := range ts.entries {
		if e.actor == a {
			e.cancelled = true
		}
	}
	ts.mu.Unlock()
	ts.wake.Notify()
}

// isBusy reports whether any non-cancelled timer is still pending.
func (ts *timerSystem) isBusy() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, e := range ts.entries {
		if !e.cancelled {
			return true
		}
	}
	return false
}

func (ts *timerSystem) loop() {
	defer close(ts.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := ts.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ts.quit:
			return
		case <-ts.wake:
			continue
		case <-timer.C:
			ts.fireDue()
		}
	}
}

func (ts *timerSystem) nextWait() time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for len(ts.entries) > 0 && ts.entries[0].cancelled {
		ts.entries = ts.entries[1:]
	}
	if len(ts.entries) == 0 {
		return time.Hour
	}
	d := time.Until(ts.entries[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// fireDue pops every entry whose deadline has passed and enqueues its
// message, skipping any cancelled in the meantime. Dispatch happens
// after releasing the timer system's lock so a slow Async enqueue never
// blocks a concurrent AddTimer/cancel.
func (ts *timerSystem) fireDue() {
	now := time.Now()

	ts.mu.Lock()
	var due []*timerEntry
	i := 0
	for i < len(ts.entries) && !ts.entries[i].deadline.After(now) {
		due = append(due, ts.entries[i])
		i++
	}
	ts.entries = ts.entries[i:]
	ts.mu.Unlock()

	for _, e := range due {
		if e.cancelled {
			continue
		}
		e.actor.Async(e.msg)
	}
}

func (ts *timerSystem) close() {
	close(ts.quit)
	<-ts.done
}
