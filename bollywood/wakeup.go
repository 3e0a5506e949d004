package bollywood

import "time"

// wakeup is a coalescing wakeup signal: a park/notify primitive for a
// single waiter, adapted from the original Yarra runtime's
// benaphore-style semaphore (a counting semaphore with an atomic
// fast-path counter, see original_source/Actor/Platform.h) into the
// idiomatic Go shape - a capacity-1 channel used as a dirty bit.
// Multiple Notify calls between Wait calls coalesce into one wakeup,
// which is exactly what every caller here needs: a worker (or the
// timer goroutine) only cares that there is
// work to look at again, not how many times it was told so.
type wakeup chan struct{}

func newWakeup() wakeup {
	return make(wakeup, 1)
}

// Notify wakes the waiter if parked, or leaves a pending wakeup if not.
// Never blocks.
func (w wakeup) Notify() {
	select {
	case w <- struct{}{}:
	default:
	}
}

// Wait parks until Notify is called.
func (w wakeup) Wait() {
	<-w
}

// WaitTimeout parks until Notify is called or the timeout elapses,
// reporting which happened.
func (w wakeup) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-w:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w:
		return true
	case <-t.C:
		return false
	}
}
