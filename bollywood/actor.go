package bollywood

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Actor is a unit of ordered, single-threaded execution. Messages queued
// on an Actor via Async always run one at a time, in enqueue order,
// never concurrently with each other - regardless of which worker
// happens to execute them. An Actor can also be pinned for direct,
// synchronous method calls via Lock/Unlock; both models share the same
// queue and the same exclusion guarantee.
type Actor struct {
	pid PID
	mgr *Manager

	// owner is the worker currently responsible for scheduling this
	// actor. It changes under migration (stealing, load balancing) and
	// is read without holding any lock, so every access that then needs
	// to act on the worker must re-verify ownership after locking it -
	// see enqueueToOwner.
	owner atomic.Pointer[worker]

	cfg ActorConfigFlag

	mu       sync.Mutex
	messages []Message
	state    actorStateFlag
	enqueued bool // true while present in some worker's ready deque

	// lockHolder records the goroutine that currently holds the manual
	// lock, for AsyncValidityCheck. Zero means unlocked.
	lockHolder uint64
}

// newActor constructs an Actor owned by w. Not exported: actors are
// always created through Manager.Spawn or NewLooper so the runtime
// can register them before use.
func newActor(mgr *Manager, w *worker, cfg ActorConfigFlag) *Actor {
	a := &Actor{
		pid: newPID(),
		mgr: mgr,
		cfg: cfg,
	}
	if cfg&LockToThread != 0 {
		a.state |= stateLockedToThread
	}
	a.owner.Store(w)
	return a
}

// PID returns the actor's stable identity.
func (a *Actor) PID() PID {
	return a.pid
}

// Async enqueues msg for later, ordered execution on this actor's
// owning worker (or, for a Looper-pinned actor, on the next Drain). It
// never blocks and never runs msg synchronously, even if the actor is
// currently idle.
//
// The mailbox append and the ready-deque/requested-counter registration
// happen inside the same owner-lock critical section (see
// withOwnerLocked) rather than two separate ones: Manager.isIdle
// TryLocks every worker's lock in turn, and if the mailbox append and
// the deque push were split across a.mu and w.mu as two critical
// sections, isIdle could observe the gap between them - deque still
// empty, nothing marked busy - and report idle with a message no worker
// has registered yet.
func (a *Actor) Async(msg Message) {
	var wake *worker
	a.withOwnerLocked(func(w *worker) {
		a.mu.Lock()
		a.messages = append(a.messages, msg)
		needsEnqueue := !a.enqueued && a.state&(stateExecuting|stateSchedularLock) == 0
		if a.state&stateSchedularLock != 0 {
			a.state |= statePendingSyncSignal
		}
		if needsEnqueue {
			a.enqueued = true
		}
		a.mu.Unlock()

		if needsEnqueue && w != nil {
			w.ready = append(w.ready, a)
			atomic.AddUint64(&w.requested, 1)
			wake = w
		}
	})
	if wake != nil {
		wake.wake.Notify()
	}
}

// withOwnerLocked acquires the actor's current owner's lock, re-verifying
// ownership after locking in case a steal raced in between reading the
// owner pointer and locking it - mirroring
// BeginAsyncMessage/EndAsyncMessage in the runtime this is grounded on -
// then runs fn with that lock held. fn receives nil if the actor has no
// owning worker (a Looper-pinned actor). Callers that mutate both the
// mailbox and the ready deque inside fn get a single critical section
// isIdle's TryLock-every-worker sweep cannot observe half of.
func (a *Actor) withOwnerLocked(fn func(w *worker)) {
	for {
		w := a.owner.Load()
		if w == nil {
			fn(nil)
			return
		}
		w.mu.Lock()
		if a.owner.Load() != w {
			w.mu.Unlock()
			runtime.Gosched()
			continue
		}
		fn(w)
		w.mu.Unlock()
		return
	}
}

// enqueueToOwner places a onto its current owner's ready deque. Used by
// the worker loop after it finishes executing a message and finds more
// still queued: the worker's own workerBusy flag stays set across this
// call (the defer that clears it runs after, not before), so isIdle
// cannot observe this worker as idle mid-call the way it could for
// Async/Unlock, and a single owner-locked critical section is enough.
func (a *Actor) enqueueToOwner() {
	a.withOwnerLocked(func(w *worker) {
		if w == nil {
			return
		}
		w.ready = append(w.ready, a)
		atomic.AddUint64(&w.requested, 1)
		w.wake.Notify()
	})
}

// Lock pins the actor to the calling goroutine: it blocks until no
// message is executing and no other goroutine holds the lock, then
// marks the actor so the scheduler will not dispatch async messages to
// it until Unlock. While locked, the caller may call the actor's own
// methods directly, with the same exclusion guarantee Async gives
// queued messages.
//
// Lock must not be called from inside a message running on this same
// actor - that would deadlock, exactly as re-locking a non-reentrant
// mutex would.
func (a *Actor) Lock() {
	gid := goroutineID()
	for {
		a.mu.Lock()
		if a.state&(stateExecuting|stateSchedularLock) == 0 {
			a.state |= stateSchedularLock
			a.lockHolder = gid
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
		runtime.Gosched()
	}
}

// Unlock releases a lock taken with Lock. If messages arrived while
// locked, it re-enqueues the actor onto its owner so the scheduler
// picks the backlog back up - in the same owner-locked critical section
// as the mailbox/state mutation, for the same reason Async does (see
// withOwnerLocked).
func (a *Actor) Unlock() {
	var wake *worker
	a.withOwnerLocked(func(w *worker) {
		a.mu.Lock()
		a.state &^= stateSchedularLock
		pending := a.state&statePendingSyncSignal != 0
		a.state &^= statePendingSyncSignal
		a.lockHolder = 0
		needsEnqueue := pending && !a.enqueued && len(a.messages) > 0
		if needsEnqueue {
			a.enqueued = true
		}
		a.mu.Unlock()

		if needsEnqueue && w != nil {
			w.ready = append(w.ready, a)
			atomic.AddUint64(&w.requested, 1)
			wake = w
		}
	})
	if wake != nil {
		wake.wake.Notify()
	}
}

// IsLocked reports whether the actor is currently held by Lock.
func (a *Actor) IsLocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state&stateSchedularLock != 0
}

// AsyncValidityCheck panics if the calling goroutine is not the one
// that holds the manual lock. It is a programmer-contract assertion,
// the Go analogue of the original runtime's assert(IsLocked()) guard:
// call it at the top of methods that are only safe to invoke while
// locked.
func (a *Actor) AsyncValidityCheck() {
	a.mu.Lock()
	holder := a.lockHolder
	a.mu.Unlock()
	if holder == 0 || holder != goroutineID() {
		panic("bollywood: Actor method called without holding the manual lock")
	}
}

// IsIdle reports whether the actor has no pending messages and is not
// currently executing one.
func (a *Actor) IsIdle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages) == 0 && a.state&stateExecuting == 0
}

// ClearAllMessages discards every queued message without running it.
// A message already executing is unaffected. It does not discard
// pending timer deliveries registered separately via Manager.AddTimer -
// use Manager.CancelTimers for that.
func (a *Actor) ClearAllMessages() {
	a.mu.Lock()
	a.messages = nil
	a.mu.Unlock()
}

// isLockedToThread reports whether the actor must never migrate. It
// reads cfg rather than the state bit so stealing code can call it
// without holding a.mu: cfg is set once at construction, before the
// Actor is published to any other goroutine, and never written again.
func (a *Actor) isLockedToThread() bool {
	return a.cfg&LockToThread != 0
}

// stealable reports whether a may be migrated to a different worker
// right now: not pinned, not currently executing a message, and not
// held under a manual Lock. A locked-but-not-yet-popped actor can still
// be sitting in a ready deque (Lock does not remove it), so stealing
// code must check stateSchedularLock here too, not just isLockedToThread.
func (a *Actor) stealable() bool {
	if a.isLockedToThread() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state&(stateExecuting|stateSchedularLock) == 0
}

// pendingCount returns the number of messages currently queued in a's
// mailbox, used by stealing code to move the requested-counter delta
// along with the actor rather than crediting the destination a flat one.
func (a *Actor) pendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}
