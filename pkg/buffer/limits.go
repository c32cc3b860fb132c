package buffer

import "time"

// Sentinel values for TopicLimits fields. A negative duration or memory
// value never occurs as a real limit, so the sentinels live in the same
// range as the data.
const (
	// NoDurationLimit disables truncation by time span no matter how
	// far apart the newest and oldest buffered messages are.
	NoDurationLimit = time.Duration(-1)
	// InheritDurationLimit marks a channel that takes the process-wide
	// default duration limit.
	InheritDurationLimit = time.Duration(-2)
)

const (
	// NoMemoryLimit disables truncation by accumulated payload size.
	NoMemoryLimit = int64(-1)
	// InheritMemoryLimit marks a channel that takes the process-wide
	// default memory limit.
	InheritMemoryLimit = int64(-2)
)

// TopicLimits holds the buffer ceilings for one channel: the maximum
// time difference between the newest and oldest buffered message, and
// the maximum accumulated payload size in bytes.
type TopicLimits struct {
	Duration time.Duration
	Memory   int64
}

// Defaults are the process-wide limits applied to channels whose own
// limits are flagged as inherited. Each field is either a concrete value
// or the corresponding no-limit sentinel, never an inherit sentinel.
type Defaults struct {
	Duration time.Duration
	Memory   int64
}

// Resolve replaces inherit sentinels field-by-field with the
// corresponding default. Explicit values and no-limit sentinels pass
// through unchanged, so resolving an already-resolved TopicLimits is a
// no-op.
func (l TopicLimits) Resolve(d Defaults) TopicLimits {
	if l.Duration == InheritDurationLimit {
		l.Duration = d.Duration
	}
	if l.Memory == InheritMemoryLimit {
		l.Memory = d.Memory
	}
	return l
}
