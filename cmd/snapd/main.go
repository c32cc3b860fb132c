package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siqueiraa/KafSnap/pkg/buffer"
	"github.com/siqueiraa/KafSnap/pkg/config"
	"github.com/siqueiraa/KafSnap/pkg/control"
	"github.com/siqueiraa/KafSnap/pkg/kafka"
	"github.com/siqueiraa/KafSnap/pkg/snapshot"
	"github.com/siqueiraa/KafSnap/pkg/state"
)

// Constants for directory creation
const (
	defaultDirMode = 0o755 // Standard directory permissions
)

const (
	statsLogInterval = 15 * time.Second
	commitInterval   = 5 * time.Second
	commitBatchSize  = 100
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the daemon configuration file")
	flag.Parse()

	log.Println("[Snapd] Starting KafSnap...")

	cfg := config.Load(*configPath)

	registry := buffer.NewRegistry(cfg.ChannelLimits(), cfg.BufferDefaults())
	log.Printf("[Snapd] Buffering %d channel(s):", registry.Len())
	for _, name := range registry.Names() {
		q, _ := registry.Lookup(name)
		log.Printf("[Snapd] Channel: %s | Duration limit: %s | Memory limit: %s",
			name, describeDuration(q.Limits().Duration), describeMemory(q.Limits().Memory))
	}

	if err := os.MkdirAll(cfg.Snapshot.OutputDir, defaultDirMode); err != nil {
		log.Fatalf("[Snapd] Failed to create output directory: %v", err)
	}

	store, err := state.Open(cfg.State.Path)
	if err != nil {
		log.Fatalf("[Snapd] Failed to open state store: %v", err)
	}
	defer store.Close()

	if stats, statsErr := store.PartitionsByTopic(); statsErr != nil {
		log.Printf("[State] Error reading saved offsets: %v", statsErr)
	} else {
		for topic, partitions := range stats {
			log.Printf("[State] Topic: %s | Saved partitions: %d", topic, partitions)
		}
	}

	coord := snapshot.NewCoordinator(registry, snapshot.Options{
		OutputDir:  cfg.Snapshot.OutputDir,
		FilePrefix: cfg.Snapshot.FilePrefix,
	})
	if cfg.Snapshot.S3.Enabled {
		coord.SetUploader(snapshot.NewS3Uploader(cfg.Snapshot.S3))
		log.Printf("[Snapd] Uploading snapshots to s3://%s/%s", cfg.Snapshot.S3.Bucket, cfg.Snapshot.S3.Prefix)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var producer *kafka.Producer
	if cfg.Snapshot.EventsTopic != "" {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			log.Fatalf("[Kafka] Failed to create producer: %v", err)
		}
		defer producer.Close()
		coord.SetNotifier(kafka.NewSnapshotNotifier(producer, cfg.Snapshot.EventsTopic))
		log.Printf("[Snapd] Publishing snapshot events to %s", cfg.Snapshot.EventsTopic)
	}

	server, err := control.NewServer(cfg.Control.Listen, coord)
	if err != nil {
		log.Fatalf("[Control] Failed to listen: %v", err)
	}
	log.Printf("[Control] Listening on %s", server.Addr())
	go func() {
		if serveErr := server.Serve(); serveErr != nil {
			log.Printf("[Control] Server stopped: %v", serveErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range registry.Names() {
		channel := name
		g.Go(func() error {
			return runIngest(gctx, channel, cfg, store, coord)
		})
	}

	<-gctx.Done()
	log.Println("[Snapd] Shutting down...")
	server.Close()
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("[Snapd] Ingest stopped with error: %v", err)
	}
}

// runIngest consumes one channel's stream and feeds the coordinator.
// While recording is paused the coordinator discards the messages, but
// offsets keep advancing: paused intervals never appear in a snapshot.
func runIngest(ctx context.Context, channel string, cfg config.AppConfig, store *state.Store, coord *snapshot.Coordinator) error {
	reader := kafka.NewConsumer(ctx, channel, cfg.Kafka, store)
	defer reader.Close()

	var batch []*kafka.InboundMessage
	lastLog := time.Now()
	lastCommit := time.Now()

	commit := func() {
		if len(batch) == 0 {
			return
		}
		if err := reader.CommitBatch(batch); err != nil {
			log.Printf("[Kafka] Commit batch error on %s: %v", channel, err)
		}
		for _, m := range batch {
			m.Release()
		}
		batch = batch[:0]
		lastCommit = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			commit()
			return ctx.Err()
		default:
		}

		if time.Since(lastLog) >= statsLogInterval {
			reader.LogStats()
			lastLog = time.Now()
		}

		msg, err := reader.Read()
		if err != nil {
			log.Printf("[Kafka] Read error on %s: %v", channel, err)
			continue
		}
		if msg == nil {
			// Poll timeout; flush a stale batch so offsets stay fresh.
			if time.Since(lastCommit) > commitInterval {
				commit()
			}
			continue
		}

		coord.Ingest(channel, msg.Buffered())
		batch = append(batch, msg)

		if len(batch) >= commitBatchSize || time.Since(lastCommit) > commitInterval {
			commit()
		}
	}
}

func describeDuration(limit time.Duration) string {
	if limit == buffer.NoDurationLimit {
		return "none"
	}
	return limit.String()
}

func describeMemory(limit int64) string {
	if limit == buffer.NoMemoryLimit {
		return "none"
	}
	return fmt.Sprintf("%d bytes", limit)
}
