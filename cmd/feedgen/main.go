package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/siqueiraa/KafSnap/pkg/config"
	"github.com/siqueiraa/KafSnap/pkg/kafka"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the daemon configuration file")
	interval := flag.Duration("interval", time.Second, "delay between publish rounds")
	flag.Parse()

	cfg := config.Load(*configPath)
	ctx := context.Background()

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		log.Fatalf("[Feedgen] failed to create Kafka producer: %v", err)
	}
	defer producer.Close()

	log.Println("[Feedgen] Starting event generation...")
	seq := 0
	for {
		for _, channel := range cfg.Channels {
			value := map[string]any{
				"seq":     seq,
				"channel": channel.Name,
				"value":   rand.Float64(),
				"ts":      time.Now().UnixNano(),
			}
			key := fmt.Appendf(nil, "seq-%d", seq)
			if err := producer.Publish(channel.Name, key, value); err != nil {
				log.Printf("[Feedgen] Publish to %s failed: %v", channel.Name, err)
			}
			seq++
		}
		time.Sleep(*interval)
	}
}
