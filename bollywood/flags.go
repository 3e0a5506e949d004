package bollywood

// ActorConfigFlag configures an Actor at construction time.
type ActorConfigFlag uint32

const (
	// LockToThread pins the actor to its original worker for its
	// whole lifetime - it never migrates, and stealing skips it.
	LockToThread ActorConfigFlag = 1 << iota
)

// actorStateFlag is the actor's bit-set state word. It is only ever
// mutated while the actor's own mutex (Actor.mu) is held.
type actorStateFlag uint32

const (
	// stateLockedToThread marks an actor that must execute on its
	// original worker forever; set once at construction, never cleared.
	stateLockedToThread actorStateFlag = 1 << iota
	// stateExecuting is set for the duration of a message's execution.
	stateExecuting
	// stateSchedularLock marks an actor manually locked by application
	// code via Actor.Lock, as if a message were executing.
	stateSchedularLock
	// statePendingSyncSignal marks that a worker tried to schedule this
	// actor while manually locked; Unlock must re-enqueue it.
	statePendingSyncSignal
)

// workerStateFlag is a worker's bit-set state word, guarded by the
// worker's own ready-queue lock.
type workerStateFlag uint32

const (
	// workerBusy is set for the duration of message execution on this worker.
	workerBusy workerStateFlag = 1 << iota
	// workerStoleWork marks a worker that just received a migrated actor,
	// so the manager doesn't immediately steal it back out.
	workerStoleWork
)
