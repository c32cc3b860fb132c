// Package snapshot owns the global recording/writing state and turns a
// trigger into a persisted bag file: drain the selected channel
// buffers, write the captured messages, then run the optional
// post-steps (S3 upload, Kafka notification).
package snapshot

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/siqueiraa/KafSnap/pkg/bag"
	"github.com/siqueiraa/KafSnap/pkg/buffer"
)

// Result is the structured outcome of a control operation. Runtime
// failures are reported here, never raised as fatal conditions.
type Result struct {
	OK      bool
	Message string
}

// Sink is the persistence collaborator a snapshot writes into.
type Sink interface {
	WriteEntry(channel string, payload []byte, metadata map[string]string, t time.Time) error
	Close() error
}

// OpenFunc opens the sink for one snapshot destination.
type OpenFunc func(path string) (Sink, error)

// Event describes one completed snapshot.
type Event struct {
	File      string
	Channels  map[string]int
	Messages  int
	Triggered time.Time
}

// Notifier is told about completed snapshots (e.g. publishes an event
// to a Kafka topic). Failures are reported in the trigger result but do
// not fail the snapshot.
type Notifier interface {
	SnapshotWritten(event Event) error
}

// Uploader copies a finished snapshot file to remote storage. Same
// best-effort contract as Notifier.
type Uploader interface {
	Upload(path string) error
}

// Options configure where snapshot files land.
type Options struct {
	OutputDir  string
	FilePrefix string
}

// Coordinator serializes snapshot requests against each other and
// against recording-state changes. Reading the recording flag on the
// ingest hot path takes the read side of the lock, so pushes across
// channels never serialize against each other; only state transitions
// take the write side.
type Coordinator struct {
	mu        sync.RWMutex
	recording bool
	writing   bool

	registry *buffer.Registry
	opts     Options
	open     OpenFunc
	notifier Notifier
	uploader Uploader
	now      func() time.Time
}

// NewCoordinator creates a coordinator over the given registry.
// Recording starts enabled; no snapshot is in flight.
func NewCoordinator(registry *buffer.Registry, opts Options) *Coordinator {
	return &Coordinator{
		recording: true,
		registry:  registry,
		opts:      opts,
		open: func(path string) (Sink, error) {
			return bag.Create(path)
		},
		now: time.Now,
	}
}

// SetNotifier installs the snapshot-completion notifier.
func (c *Coordinator) SetNotifier(n Notifier) { c.notifier = n }

// SetUploader installs the snapshot upload post-step.
func (c *Coordinator) SetUploader(u Uploader) { c.uploader = u }

// Recording reports whether new messages are being accepted.
func (c *Coordinator) Recording() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recording
}

// Ingest pushes one inbound message into its channel buffer. While
// recording is paused the message is discarded and false is returned;
// pausing never flushes or truncates buffered contents.
func (c *Coordinator) Ingest(channel string, msg buffer.Message) bool {
	c.mu.RLock()
	recording := c.recording
	c.mu.RUnlock()
	if !recording {
		return false
	}

	q, ok := c.registry.Lookup(channel)
	if !ok {
		return false
	}
	return q.Push(msg)
}

// SetRecording enables or disables buffering of new messages. Always
// succeeds.
func (c *Coordinator) SetRecording(enabled bool) Result {
	c.mu.Lock()
	c.recording = enabled
	c.mu.Unlock()

	if enabled {
		log.Printf("[Snapshot] Recording resumed")
		return Result{OK: true, Message: "recording resumed"}
	}
	log.Printf("[Snapshot] Recording paused")
	return Result{OK: true, Message: "recording paused"}
}

type capture struct {
	name string
	msgs []buffer.Message
}

// Trigger drains the selected channels (all configured channels when
// topics is empty) and persists the captured messages to one bag file.
// At most one snapshot runs at a time; concurrent triggers are rejected,
// not queued. The slow file I/O happens with no buffer locks held, so a
// large flush never stalls ingest.
func (c *Coordinator) Trigger(topics []string, filename string) Result {
	c.mu.Lock()
	if c.writing {
		c.mu.Unlock()
		return Result{OK: false, Message: "snapshot already in progress"}
	}
	c.writing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.writing = false
		c.mu.Unlock()
	}()

	explicit := len(topics) > 0
	targets := topics
	if !explicit {
		targets = c.registry.Names()
	}

	// Drain phase: one channel lock at a time, never nested, so ingest
	// on the other channels keeps flowing.
	var notes []string
	captured := make([]capture, 0, len(targets))
	for _, name := range targets {
		q, ok := c.registry.Lookup(name)
		if !ok {
			notes = append(notes, fmt.Sprintf("unknown channel %s", name))
			continue
		}
		msgs := q.Drain()
		if len(msgs) == 0 {
			if explicit {
				notes = append(notes, fmt.Sprintf("no buffered messages for %s", name))
			}
			continue
		}
		captured = append(captured, capture{name: name, msgs: msgs})
	}

	triggered := c.now()
	path := c.resolvePath(filename, triggered)

	sink, err := c.open(path)
	if err != nil {
		return Result{OK: false, Message: joined(fmt.Sprintf("open snapshot %s: %v", path, err), notes)}
	}

	total := 0
	counts := make(map[string]int, len(captured))
	var writeErr error
	for _, part := range captured {
		for _, msg := range part.msgs {
			if writeErr = sink.WriteEntry(part.name, msg.Payload, msg.Metadata, msg.Time); writeErr != nil {
				break
			}
			total++
			counts[part.name]++
		}
		if writeErr != nil {
			break
		}
	}
	if closeErr := sink.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return Result{OK: false, Message: joined(fmt.Sprintf("write snapshot %s: %v", path, writeErr), notes)}
	}

	log.Printf("[Snapshot] Wrote %d message(s) from %d channel(s) to %s", total, len(captured), path)

	if c.uploader != nil {
		if uploadErr := c.uploader.Upload(path); uploadErr != nil {
			log.Printf("[Snapshot] Upload of %s failed: %v", path, uploadErr)
			notes = append(notes, fmt.Sprintf("upload failed: %v", uploadErr))
		}
	}
	if c.notifier != nil {
		event := Event{File: path, Channels: counts, Messages: total, Triggered: triggered}
		if notifyErr := c.notifier.SnapshotWritten(event); notifyErr != nil {
			log.Printf("[Snapshot] Notification for %s failed: %v", path, notifyErr)
			notes = append(notes, fmt.Sprintf("notification failed: %v", notifyErr))
		}
	}

	summary := fmt.Sprintf("wrote %d message(s) from %d channel(s) to %s", total, len(captured), path)
	return Result{OK: true, Message: joined(summary, notes)}
}

func joined(summary string, notes []string) string {
	if len(notes) == 0 {
		return summary
	}
	return summary + "; " + strings.Join(notes, "; ")
}
