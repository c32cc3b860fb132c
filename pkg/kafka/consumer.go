package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/siqueiraa/KafSnap/pkg/buffer"
	"github.com/siqueiraa/KafSnap/pkg/config"
	"github.com/siqueiraa/KafSnap/pkg/state"
)

const (
	// Maximum value for signed 32-bit integer
	maxInt32 = 0x7FFFFFFF
)

var inboundPool = sync.Pool{New: func() any { return new(InboundMessage) }}

// Consumer reads one channel's raw Kafka stream. Payloads are never
// decoded: the buffer stores them as received and the snapshot writes
// them back out verbatim.
type Consumer struct {
	ctx   context.Context
	c     *ck.Consumer
	topic string
	store *state.Store
}

// InboundMessage is one received message before it enters a buffer.
type InboundMessage struct {
	Channel   string
	Payload   []byte
	Key       []byte
	Time      time.Time // wall-clock receipt time, not the broker timestamp
	Partition int
	Offset    int64
}

// Release returns the struct to the pool. The payload slice is handed
// off to the buffer, so only the wrapper is reused.
func (m *InboundMessage) Release() {
	*m = InboundMessage{}
	inboundPool.Put(m)
}

// Buffered converts the inbound message into its buffered form. The
// metadata records where in the stream the message came from so a bag
// entry can be traced back.
func (m *InboundMessage) Buffered() buffer.Message {
	return buffer.Message{
		Payload: m.Payload,
		Size:    int64(len(m.Payload)),
		Metadata: map[string]string{
			"partition": strconv.Itoa(m.Partition),
			"offset":    strconv.FormatInt(m.Offset, 10),
			"key":       string(m.Key),
		},
		Time: m.Time,
	}
}

// NewConsumer subscribes to one topic. It terminates the process on
// unrecoverable configuration errors; consumer construction happens
// only at startup, where refusing to run is the right call.
func NewConsumer(
	ctx context.Context,
	topic string,
	cfg config.KafkaConfig,
	store *state.Store,
) *Consumer {
	cm := &ck.ConfigMap{
		"bootstrap.servers":               strings.Join(cfg.Brokers, ","),
		"group.id":                        cfg.GroupID,
		"enable.auto.commit":              false,
		"auto.offset.reset":               "latest",
		"go.application.rebalance.enable": true,
	}
	c, err := ck.NewConsumer(cm)
	if err != nil {
		log.Fatalf("[Kafka] Failed to create consumer for %s: %v", topic, err)
	}

	cons := &Consumer{
		ctx:   ctx,
		c:     c,
		topic: topic,
		store: store,
	}

	// Resume from the offsets saved in the state store when partitions
	// are assigned; fall back to the broker's position for new ones.
	err = c.SubscribeTopics([]string{topic}, func(con *ck.Consumer, ev ck.Event) error {
		switch e := ev.(type) {
		case ck.AssignedPartitions:
			parts := e.Partitions
			for i := range parts {
				off, offsetErr := store.GetOffset(topic, int(parts[i].Partition))
				if offsetErr != nil {
					log.Printf("[Kafka] No saved offset for %s partition %d", topic, int(parts[i].Partition))
					continue
				}
				log.Printf("[Kafka] Resuming %s partition %d at offset %d", topic, int(parts[i].Partition), off)
				parts[i].Offset = ck.Offset(off + 1)
			}
			return con.Assign(parts)
		case ck.RevokedPartitions:
			return con.Unassign()
		default:
			return nil
		}
	})
	if err != nil {
		log.Fatalf("[Kafka] Subscribe to %s failed: %v", topic, err)
	}

	return cons
}

// Read blocks for the next message. Returns (nil, nil) on a poll
// timeout so the caller can loop. The receipt wall-clock time is
// stamped here.
func (c *Consumer) Read() (*InboundMessage, error) {
	msg, err := c.c.ReadMessage(time.Second)
	if err != nil {
		var ke ck.Error
		if errors.As(err, &ke) && ke.Code() == ck.ErrTimedOut {
			return nil, nil
		}
		return nil, err
	}

	dm := inboundPool.Get().(*InboundMessage)
	dm.Channel = *msg.TopicPartition.Topic
	dm.Partition = int(msg.TopicPartition.Partition)
	dm.Offset = int64(msg.TopicPartition.Offset)
	dm.Key = msg.Key
	dm.Payload = msg.Value
	dm.Time = time.Now()
	return dm, nil
}

// CommitBatch commits a group of messages in one RPC and mirrors the
// highest offset per partition into the state store.
func (c *Consumer) CommitBatch(dms []*InboundMessage) error {
	if len(dms) == 0 {
		return nil
	}

	byPart := highestOffsets(dms)
	tps := make([]ck.TopicPartition, 0, len(byPart))
	for p, off := range byPart {
		if p > maxInt32 { // Ensure partition fits in int32
			return fmt.Errorf("partition %d exceeds int32 limit", p)
		}
		tps = append(tps, ck.TopicPartition{
			Topic:     &c.topic,
			Partition: int32(p), //nolint:gosec // Bounded by int32 max check above
			Offset:    ck.Offset(off),
		})
	}
	if _, err := c.c.CommitOffsets(tps); err != nil {
		return fmt.Errorf("commit batch failed: %w", err)
	}

	for p, off := range byPart {
		if err := c.store.SaveOffset(c.topic, p, off-1); err != nil {
			return fmt.Errorf("save offset for %s/%d: %w", c.topic, p, err)
		}
	}
	return nil
}

// highestOffsets returns next-offset-to-consume (offset+1) per
// partition.
func highestOffsets(dms []*InboundMessage) map[int]int64 {
	byPart := make(map[int]int64)
	for _, dm := range dms {
		next := dm.Offset + 1
		if curr, ok := byPart[dm.Partition]; !ok || next > curr {
			byPart[dm.Partition] = next
		}
	}
	return byPart
}

func (c *Consumer) Close() error { return c.c.Close() }

func (c *Consumer) LogStats() {
	if s := c.c.String(); s != "" {
		log.Printf("[Kafka] %s", s)
	}
}
