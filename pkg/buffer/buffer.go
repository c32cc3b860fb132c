package buffer

import (
	"log"
	"sync"
	"time"
)

// Message is a single buffered message. Payload stays opaque: the
// snapshot path never inspects or re-encodes it. Time is the wall-clock
// time of receipt, never a timestamp carried inside the payload.
// A Message is immutable once constructed.
type Message struct {
	Payload  []byte
	Size     int64
	Metadata map[string]string
	Time     time.Time
}

// Queue buffers the most recent messages for one channel, truncating
// the front (oldest first) as needed on every Push to enforce its
// resolved limits. All methods are safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	name   string
	limits TopicLimits
	msgs   []Message
	// size is the sum of Size over all buffered messages.
	size    int64
	dropped uint64
}

// NewQueue creates an empty queue for the named channel. The limits
// must already be resolved against the process defaults.
func NewQueue(name string, limits TopicLimits) *Queue {
	return &Queue{
		name:   name,
		limits: limits,
		msgs:   make([]Message, 0),
	}
}

// Push appends msg, evicting the oldest messages first so that the
// memory and duration limits hold afterwards. The memory pass runs
// before the duration pass, so one push may truncate for both reasons.
// Returns false only when msg itself is larger than a finite memory
// limit: the message is dropped and the queue is left unchanged.
func (q *Queue) Push(msg Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limits.Memory != NoMemoryLimit && msg.Size > q.limits.Memory {
		q.dropped++
		log.Printf("[Buffer] Dropped oversize message on %s: %d bytes exceeds memory limit of %d bytes (total dropped: %d)",
			q.name, msg.Size, q.limits.Memory, q.dropped)
		return false
	}

	if q.limits.Memory != NoMemoryLimit {
		for len(q.msgs) > 0 && q.size+msg.Size > q.limits.Memory {
			q.evictFront()
		}
	}

	q.msgs = append(q.msgs, msg)
	q.size += msg.Size

	if q.limits.Duration != NoDurationLimit {
		for len(q.msgs) > 1 && q.msgs[len(q.msgs)-1].Time.Sub(q.msgs[0].Time) > q.limits.Duration {
			q.evictFront()
		}
	}
	return true
}

// evictFront removes the oldest message. Caller holds the lock.
func (q *Queue) evictFront() {
	q.size -= q.msgs[0].Size
	q.msgs = q.msgs[1:]
}

// Pop removes and returns the oldest message. The second return is
// false when the queue is empty.
func (q *Queue) Pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) == 0 {
		return Message{}, false
	}
	msg := q.msgs[0]
	q.evictFront()
	return msg, true
}

// Duration returns the time difference between the newest and oldest
// buffered message, or zero when fewer than two messages are buffered.
func (q *Queue) Duration() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) < 2 {
		return 0
	}
	return q.msgs[len(q.msgs)-1].Time.Sub(q.msgs[0].Time)
}

// Drain atomically removes and returns all buffered messages, oldest
// first, leaving the queue empty. It holds only this queue's lock, so a
// drain never blocks pushes on other channels.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.msgs
	q.msgs = make([]Message, 0)
	q.size = 0
	return drained
}

// Name returns the channel name this queue buffers.
func (q *Queue) Name() string { return q.name }

// Limits returns the resolved limits the queue enforces.
func (q *Queue) Limits() TopicLimits { return q.limits }

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Size returns the accumulated payload size in bytes.
func (q *Queue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the number of oversize messages rejected by Push.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
