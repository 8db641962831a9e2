// Package pairqueue implements the bounded delay-buffered paired input
// exchanger at the heart of lockstep netplay: local and remote inputs
// accumulate in two queues and commit as pairs once the local delay is
// satisfied. It is generic so it can hold protocol.Input or any other tick
// payload.
package pairqueue

// Pair is a committed pair of local/remote values for the same tick.
type Pair[T any] struct {
	Local  T
	Remote T
}

// Queue is a bounded delayed paired input buffer. The zero value is not
// usable; construct with New.
type Queue[T any] struct {
	localQueue  []T
	remoteQueue []T
	localDelay  uint32
	capacity    int
}

// New creates a Queue with the given soft capacity (used only to
// pre-allocate, never enforced as a hard cap: a tick cannot be added until
// the emulator drives it) and local delay.
func New[T any](capacity int, localDelay uint32) *Queue[T] {
	return &Queue[T]{
		localQueue:  make([]T, 0, capacity),
		remoteQueue: make([]T, 0, capacity),
		localDelay:  localDelay,
		capacity:    capacity,
	}
}

// AddLocal appends v to the local queue.
func (q *Queue[T]) AddLocal(v T) {
	q.localQueue = append(q.localQueue, v)
}

// AddRemote appends v to the remote queue.
func (q *Queue[T]) AddRemote(v T) {
	q.remoteQueue = append(q.remoteQueue, v)
}

// LocalDelay returns the configured local delay.
func (q *Queue[T]) LocalDelay() uint32 { return q.localDelay }

// LocalQueueLen returns the number of buffered, uncommitted local entries.
func (q *Queue[T]) LocalQueueLen() int { return len(q.localQueue) }

// RemoteQueueLen returns the number of buffered, uncommitted remote entries.
func (q *Queue[T]) RemoteQueueLen() int { return len(q.remoteQueue) }

// ConsumeAndPeekLocal drains the longest committable prefix from both
// queues and returns it as ordered Pairs, alongside the locally-predictable
// but not-yet-committable suffix of the local queue (the "peeked" entries).
// A local entry at position i commits once a remote entry at position i
// exists and i < len(local) - delay.
func (q *Queue[T]) ConsumeAndPeekLocal() (committed []Pair[T], peekedLocal []T) {
	n := len(q.localQueue) - int(q.localDelay)
	if len(q.remoteQueue) < n {
		n = len(q.remoteQueue)
	}

	if n > 0 {
		committed = make([]Pair[T], n)
		for i := 0; i < n; i++ {
			committed[i] = Pair[T]{Local: q.localQueue[i], Remote: q.remoteQueue[i]}
		}
		q.localQueue = append(q.localQueue[:0:0], q.localQueue[n:]...)
		q.remoteQueue = append(q.remoteQueue[:0:0], q.remoteQueue[n:]...)
	}

	peekN := len(q.localQueue) - int(q.localDelay)
	if peekN > 0 {
		peekedLocal = append([]T(nil), q.localQueue[:peekN]...)
	}

	return committed, peekedLocal
}
