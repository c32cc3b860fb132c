package buffer

import "sort"

// Registry owns the queue for every configured channel. The channel set
// is fixed at construction, so lookups need no locking; only the queue
// contents are mutable afterwards.
type Registry struct {
	queues map[string]*Queue
	names  []string
}

// NewRegistry builds a queue per channel, resolving each channel's
// limits against the process defaults exactly once.
func NewRegistry(channels map[string]TopicLimits, defaults Defaults) *Registry {
	queues := make(map[string]*Queue, len(channels))
	names := make([]string, 0, len(channels))
	for name, limits := range channels {
		queues[name] = NewQueue(name, limits.Resolve(defaults))
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{queues: queues, names: names}
}

// Lookup returns the queue for the named channel, or false when the
// channel is not configured.
func (r *Registry) Lookup(name string) (*Queue, bool) {
	q, ok := r.queues[name]
	return q, ok
}

// Names returns all configured channel names in sorted order.
func (r *Registry) Names() []string { return r.names }

// Len returns the number of configured channels.
func (r *Registry) Len() int { return len(r.queues) }
