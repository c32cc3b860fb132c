package bag

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.bag")

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	writer, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	entries := []struct {
		channel string
		payload string
		meta    map[string]string
		at      time.Time
	}{
		{"/orders", `{"id":1}`, map[string]string{"partition": "0", "offset": "41"}, base},
		{"/orders", `{"id":2}`, map[string]string{"partition": "0", "offset": "42"}, base.Add(time.Second)},
		{"/metrics", "cpu=0.93", nil, base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := writer.WriteEntry(e.channel, []byte(e.payload), e.meta, e.at); err != nil {
			t.Fatalf("WriteEntry failed: %v", err)
		}
	}
	if writer.Entries() != 3 {
		t.Errorf("Expected 3 entries written, got %d", writer.Entries())
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	for i, expected := range entries {
		entry, err := reader.Next()
		if err != nil {
			t.Fatalf("Next on entry %d failed: %v", i, err)
		}
		if entry.Channel != expected.channel {
			t.Errorf("Entry %d: expected channel %s, got %s", i, expected.channel, entry.Channel)
		}
		if string(entry.Payload) != expected.payload {
			t.Errorf("Entry %d: expected payload %q, got %q", i, expected.payload, entry.Payload)
		}
		if !entry.Time.Equal(expected.at) {
			t.Errorf("Entry %d: expected time %v, got %v", i, expected.at, entry.Time)
		}
		for k, v := range expected.meta {
			if entry.Metadata[k] != v {
				t.Errorf("Entry %d: expected metadata %s=%s, got %s", i, k, v, entry.Metadata[k])
			}
		}
	}

	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after last entry, got %v", err)
	}
}

func TestEmptyBag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bag")

	writer, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF from empty bag, got %v", err)
	}
}

func TestOpenRejectsNonBag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bag")
	if err := os.WriteFile(path, []byte("definitely not a bag file"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Errorf("Expected Open to reject a non-bag file")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.bag")); err == nil {
		t.Errorf("Expected Open of missing file to fail")
	}
}

func TestLargePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.bag")

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	writer, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := writer.WriteEntry("/big", payload, nil, time.Now()); err != nil {
		t.Fatalf("WriteEntry failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	entry, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(entry.Payload) != len(payload) {
		t.Fatalf("Expected %d payload bytes, got %d", len(payload), len(entry.Payload))
	}
	for i := range payload {
		if entry.Payload[i] != payload[i] {
			t.Fatalf("Payload corrupted at byte %d", i)
		}
	}
}
