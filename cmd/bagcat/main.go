package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/siqueiraa/KafSnap/pkg/bag"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: bagcat <file.bag>")
	}

	reader, err := bag.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("read entry %d: %v", count, err)
		}
		fmt.Printf("%s  %s  %d bytes%s\n",
			entry.Time.Format(time.RFC3339Nano), entry.Channel, len(entry.Payload), formatMetadata(entry.Metadata))
		count++
	}
	fmt.Printf("%d entries\n", count)
}

func formatMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, metadata[k]))
	}
	return "  [" + strings.Join(pairs, " ") + "]"
}
