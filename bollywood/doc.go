// Package bollywood is a general-purpose actor runtime: ordered,
// single-threaded message execution per actor, with parallelism
// harvested across a pool of worker goroutines via work stealing.
//
// It supports two programming models on top of the same serialization
// guarantee: asynchronous messaging (Async queues a closure to run
// later on the actor's owning worker) and manual locking (Lock/Unlock
// pin an actor so the caller can invoke its methods directly). A
// shared Timer schedules delayed messages onto actors, and an
// optional load balancer rebalances queued actors across workers or
// grows the pool when the system is starvation-bound. A Looper lets an
// externally driven thread - typically a host event loop - act as a
// worker that drains messages on demand instead of being scheduled by
// the pool.
package bollywood
