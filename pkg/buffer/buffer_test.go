package buffer

import (
	"fmt"
	"testing"
	"time"
)

func message(size int64, at time.Time) Message {
	return Message{
		Payload: make([]byte, size),
		Size:    size,
		Time:    at,
	}
}

func TestPushEvictionBySize(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: 1000})
	base := time.Now()

	for i := 0; i < 3; i++ {
		msg := message(400, base.Add(time.Duration(i)*time.Second))
		if !q.Push(msg) {
			t.Fatalf("Push %d unexpectedly rejected", i)
		}
	}

	// 400+400+400 exceeds 1000, so the first message must be evicted.
	if q.Len() != 2 {
		t.Errorf("Expected 2 messages after eviction, got %d", q.Len())
	}
	if q.Size() != 800 {
		t.Errorf("Expected total size 800, got %d", q.Size())
	}

	// The survivors are the 2nd and 3rd messages.
	first, ok := q.Pop()
	if !ok {
		t.Fatalf("Expected non-empty queue")
	}
	if !first.Time.Equal(base.Add(time.Second)) {
		t.Errorf("Expected oldest survivor at t+1s, got %v", first.Time)
	}
}

func TestPushEvictionByDuration(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: 5 * time.Second, Memory: NoMemoryLimit})
	base := time.Now()

	for _, offset := range []time.Duration{0, 3 * time.Second, 7 * time.Second} {
		if !q.Push(message(10, base.Add(offset))) {
			t.Fatalf("Push at offset %v unexpectedly rejected", offset)
		}
	}

	// Span 0..7s exceeds 5s, so the t=0 message must be evicted.
	if q.Len() != 2 {
		t.Errorf("Expected 2 messages after duration eviction, got %d", q.Len())
	}
	if q.Duration() != 4*time.Second {
		t.Errorf("Expected duration 4s, got %v", q.Duration())
	}

	first, _ := q.Pop()
	if !first.Time.Equal(base.Add(3 * time.Second)) {
		t.Errorf("Expected oldest survivor at t+3s, got %v", first.Time)
	}
}

func TestPushOversizeDrop(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: 1000})

	if q.Push(message(2000, time.Now())) {
		t.Errorf("Expected oversize push to be rejected")
	}
	if q.Len() != 0 {
		t.Errorf("Expected queue unchanged after oversize drop, got %d messages", q.Len())
	}
	if q.Size() != 0 {
		t.Errorf("Expected total size 0 after oversize drop, got %d", q.Size())
	}
	if q.Dropped() != 1 {
		t.Errorf("Expected dropped counter 1, got %d", q.Dropped())
	}
}

func TestMemoryBoundHolds(t *testing.T) {
	const limit = 5000
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: limit})
	base := time.Now()

	sizes := []int64{100, 4900, 2500, 2500, 1, 4999, 5000, 3000}
	for i, size := range sizes {
		if !q.Push(message(size, base.Add(time.Duration(i)*time.Millisecond))) {
			t.Fatalf("Push %d (size %d) unexpectedly rejected", i, size)
		}
		if q.Size() > limit {
			t.Errorf("Memory bound violated after push %d: %d > %d", i, q.Size(), limit)
		}
	}
}

func TestDurationBoundHolds(t *testing.T) {
	const limit = 10 * time.Second
	q := NewQueue("/test", TopicLimits{Duration: limit, Memory: NoMemoryLimit})
	base := time.Now()

	offsets := []time.Duration{0, time.Second, 4 * time.Second, 11 * time.Second, 12 * time.Second, 30 * time.Second}
	for i, offset := range offsets {
		q.Push(message(1, base.Add(offset)))
		if q.Len() >= 2 && q.Duration() > limit {
			t.Errorf("Duration bound violated after push %d: %v > %v", i, q.Duration(), limit)
		}
	}
}

func TestSizeAccounting(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: 5 * time.Second, Memory: 1000})
	base := time.Now()

	// Interleave pushes, pops and drains, checking that the accumulator
	// always matches the sum of the buffered sizes.
	check := func(step string) {
		var sum int64
		n := q.Len()
		drained := q.Drain()
		for _, m := range drained {
			sum += m.Size
		}
		for _, m := range drained {
			q.Push(m)
		}
		if q.Len() != n {
			t.Fatalf("%s: re-push changed length from %d to %d", step, n, q.Len())
		}
		if q.Size() != sum {
			t.Errorf("%s: size accumulator %d != sum of sizes %d", step, q.Size(), sum)
		}
	}

	q.Push(message(300, base))
	check("after first push")
	q.Push(message(300, base.Add(time.Second)))
	q.Push(message(300, base.Add(2*time.Second)))
	check("after fill")
	q.Push(message(300, base.Add(3*time.Second))) // evicts by size
	check("after size eviction")
	q.Pop()
	check("after pop")
}

func TestFIFOOrder(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: NoMemoryLimit})
	base := time.Now()

	for i := 0; i < 10; i++ {
		q.Push(message(1, base.Add(time.Duration(i)*time.Millisecond)))
	}

	drained := q.Drain()
	if len(drained) != 10 {
		t.Fatalf("Expected 10 drained messages, got %d", len(drained))
	}
	for i := 1; i < len(drained); i++ {
		if drained[i].Time.Before(drained[i-1].Time) {
			t.Errorf("Messages at %d and %d out of arrival order", i-1, i)
		}
	}
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: NoMemoryLimit})
	base := time.Now()

	for i := 0; i < 5; i++ {
		q.Push(message(100, base.Add(time.Duration(i)*time.Second)))
	}

	drained := q.Drain()
	if len(drained) != 5 {
		t.Errorf("Expected 5 drained messages, got %d", len(drained))
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drain, got %d messages", q.Len())
	}
	if q.Size() != 0 {
		t.Errorf("Expected size 0 after drain, got %d", q.Size())
	}
	if q.Duration() != 0 {
		t.Errorf("Expected duration 0 after drain, got %v", q.Duration())
	}

	// Draining an empty queue yields an empty slice.
	if len(q.Drain()) != 0 {
		t.Errorf("Expected empty drain from empty queue")
	}
}

func TestPopEmpty(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: NoMemoryLimit})

	if _, ok := q.Pop(); ok {
		t.Errorf("Expected Pop on empty queue to report not ok")
	}
}

func TestDurationSingleElement(t *testing.T) {
	// A single buffered message never violates the duration limit, no
	// matter how old it is.
	q := NewQueue("/test", TopicLimits{Duration: time.Second, Memory: NoMemoryLimit})
	q.Push(message(1, time.Now().Add(-time.Hour)))

	if q.Len() != 1 {
		t.Errorf("Expected single old message to stay buffered, got %d", q.Len())
	}
	if q.Duration() != 0 {
		t.Errorf("Expected duration 0 for single element, got %v", q.Duration())
	}
}

func TestMemoryThenDurationPass(t *testing.T) {
	// Both limits violated by one push: the memory pass runs first,
	// then the duration pass trims what is left.
	q := NewQueue("/test", TopicLimits{Duration: 2 * time.Second, Memory: 1000})
	base := time.Now()

	q.Push(message(400, base))
	q.Push(message(400, base.Add(time.Second)))
	q.Push(message(400, base.Add(10*time.Second)))

	// Memory evicts t+0; duration then evicts t+1s (span 9s > 2s).
	if q.Len() != 1 {
		t.Errorf("Expected 1 survivor after combined eviction, got %d", q.Len())
	}
	last, _ := q.Pop()
	if !last.Time.Equal(base.Add(10 * time.Second)) {
		t.Errorf("Expected newest message to survive, got one at %v", last.Time)
	}
}

func TestConcurrentPushers(t *testing.T) {
	q := NewQueue("/test", TopicLimits{Duration: NoDurationLimit, Memory: 100000})
	done := make(chan bool, 3)

	for w := 0; w < 2; w++ {
		go func(worker int) {
			base := time.Now()
			for i := 0; i < 200; i++ {
				q.Push(Message{
					Payload:  []byte(fmt.Sprintf("w%d-%d", worker, i)),
					Size:     10,
					Time:     base.Add(time.Duration(i) * time.Microsecond),
					Metadata: map[string]string{"worker": fmt.Sprint(worker)},
				})
			}
			done <- true
		}(w)
	}

	go func() {
		for i := 0; i < 50; i++ {
			q.Drain()
			q.Duration()
			q.Size()
		}
		done <- true
	}()

	<-done
	<-done
	<-done

	// Whatever remains must satisfy the accounting invariant.
	var sum int64
	for _, m := range q.Drain() {
		sum += m.Size
	}
	if q.Size() != 0 {
		t.Errorf("Expected size 0 after final drain, got %d", q.Size())
	}
	if sum > 100000 {
		t.Errorf("Memory bound violated under concurrency: %d", sum)
	}
}
