package bollywood

import "sync"

// Looper lets an externally driven thread - typically a host GUI or
// media event loop - participate in the runtime without being
// scheduled by the worker pool. Its actor is never stolen and never
// executed by a worker goroutine; instead, the host calls Drain on its
// own schedule (once per event-loop tick, for instance) to run
// whatever has queued up since the last call.
//
// A Looper also exposes a second, external mailbox via PostExternal,
// for messages that originate outside the actor system entirely (raw
// OS events, callback-driven I/O). Drain always empties the external
// mailbox first, ahead of ordinary actor messages.
type Looper struct {
	mgr   *Manager
	actor *Actor

	mu       sync.Mutex
	external []Message

	hostGoroutine uint64 // set on first Drain; 0 means unclaimed
}

// NewLooper creates a Looper with its own pinned Actor. The actor has
// no worker owner - Async just queues onto it, and only Drain ever
// removes messages from that queue.
func NewLooper(mgr *Manager) *Looper {
	a := newActor(mgr, nil, LockToThread)
	return &Looper{mgr: mgr, actor: a}
}

// Actor returns the Looper's pinned actor, so other actors can address
// it with the same Async/PID API as any other actor.
func (lp *Looper) Actor() *Actor {
	return lp.actor
}

// PostExternal queues msg onto the external mailbox, ahead of the
// actor's ordinary message queue, for the next Drain call.
func (lp *Looper) PostExternal(msg Message) {
	lp.mu.Lock()
	lp.external = append(lp.external, msg)
	lp.mu.Unlock()
}

// assertHostThread enforces that every Drain call for this Looper comes
// from the same goroutine, the way the original runtime's OsLooper
// asserted a single OS thread owned the event loop. The first caller
// claims the role.
func (lp *Looper) assertHostThread() {
	gid := goroutineID()
	lp.mu.Lock()
	if lp.hostGoroutine == 0 {
		lp.hostGoroutine = gid
	}
	owner := lp.hostGoroutine
	lp.mu.Unlock()
	if owner != gid {
		panic("bollywood: Looper.Drain called from more than one goroutine")
	}
}

// Drain runs every message queued on the external mailbox, then every
// message queued on the actor's own mailbox, re-checking the external
// mailbox ahead of every single actor message rather than just once at
// the start - an actor message that itself calls PostExternal (directly
// or indirectly) must have that message run before Drain moves on, not
// wait for the next Drain call, since external is the higher-priority
// queue. It returns how many messages it ran in total, and stops
// draining the actor mailbox (external is still drained) once it finds
// the actor manually locked by application code. Drain must always be
// called from the same goroutine for a given Looper.
func (lp *Looper) Drain() int {
	lp.assertHostThread()

	processed := 0
	a := lp.actor

	for {
		if msg, ok := lp.popExternal(); ok {
			lp.run(msg)
			processed++
			continue
		}

		a.mu.Lock()
		if a.state&stateSchedularLock != 0 || len(a.messages) == 0 {
			a.mu.Unlock()
			break
		}
		msg := a.messages[0]
		a.messages = a.messages[1:]
		a.enqueued = len(a.messages) > 0
		a.state |= stateExecuting
		a.mu.Unlock()

		lp.run(msg)
		processed++

		a.mu.Lock()
		a.state &^= stateExecuting
		a.mu.Unlock()
	}

	return processed
}

// popExternal removes and returns the oldest queued external message,
// if any.
func (lp *Looper) popExternal() (Message, bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if len(lp.external) == 0 {
		return nil, false
	}
	msg := lp.external[0]
	lp.external = lp.external[1:]
	return msg, true
}

func (lp *Looper) run(msg Message) {
	defer lp.mgr.recoverActorPanic(lp.actor)
	msg()
}
