// Package bag implements the on-disk snapshot container: a gzip stream
// of length-framed entries, each a JSON header followed by the raw
// payload bytes. Payloads are stored untouched; the header carries the
// channel name, arrival time, metadata and an xxhash64 checksum.
package bag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
)

var json = jsoniter.ConfigFastest

// File layout: magic, format version byte, then a gzip stream of
// entries. Each entry is a 4-byte big-endian header length, the JSON
// header, then the payload.
const (
	formatVersion byte = 1
	// maxHeaderLength bounds the JSON header of one entry. Metadata maps
	// are small key/value sets; 1 MB is far beyond anything legitimate.
	maxHeaderLength = 1 << 20
)

var magic = []byte("KSNAPBAG")

// ErrChecksum is returned by Reader.Next when a payload does not match
// the checksum recorded in its header.
var ErrChecksum = errors.New("bag: payload checksum mismatch")

type entryHeader struct {
	Channel  string            `json:"channel"`
	Time     int64             `json:"time"` // arrival time, unix nanoseconds
	Size     int64             `json:"size"` // payload length in bytes
	Checksum uint64            `json:"checksum"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Entry is one decoded bag record.
type Entry struct {
	Channel  string
	Payload  []byte
	Metadata map[string]string
	Time     time.Time
}

// Writer appends entries to a bag file. Not safe for concurrent use;
// the snapshot path writes from a single goroutine.
type Writer struct {
	file    *os.File
	gz      *gzip.Writer
	entries int64
}

// Create opens a new bag file at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create bag %s: %w", path, err)
	}
	if _, err := file.Write(magic); err != nil {
		file.Close()
		return nil, fmt.Errorf("write bag magic: %w", err)
	}
	if _, err := file.Write([]byte{formatVersion}); err != nil {
		file.Close()
		return nil, fmt.Errorf("write bag version: %w", err)
	}
	return &Writer{file: file, gz: gzip.NewWriter(file)}, nil
}

// WriteEntry appends one message to the bag.
func (w *Writer) WriteEntry(channel string, payload []byte, metadata map[string]string, t time.Time) error {
	header, err := json.Marshal(entryHeader{
		Channel:  channel,
		Time:     t.UnixNano(),
		Size:     int64(len(payload)),
		Checksum: xxhash.Sum64(payload),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal entry header: %w", err)
	}

	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(header)))
	if _, err := w.gz.Write(frame[:]); err != nil {
		return fmt.Errorf("write entry frame: %w", err)
	}
	if _, err := w.gz.Write(header); err != nil {
		return fmt.Errorf("write entry header: %w", err)
	}
	if _, err := w.gz.Write(payload); err != nil {
		return fmt.Errorf("write entry payload: %w", err)
	}
	w.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (w *Writer) Entries() int64 { return w.entries }

// Close flushes the compressed stream and closes the file.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close bag stream: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close bag file: %w", err)
	}
	return nil
}

// Reader iterates over the entries of a bag file.
type Reader struct {
	file *os.File
	gz   *gzip.Reader
}

// Open opens a bag file for reading and validates its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bag %s: %w", path, err)
	}

	head := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(file, head); err != nil {
		file.Close()
		return nil, fmt.Errorf("read bag header: %w", err)
	}
	if string(head[:len(magic)]) != string(magic) {
		file.Close()
		return nil, fmt.Errorf("%s is not a bag file", path)
	}
	if head[len(magic)] != formatVersion {
		file.Close()
		return nil, fmt.Errorf("unsupported bag version %d", head[len(magic)])
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open bag stream: %w", err)
	}
	return &Reader{file: file, gz: gz}, nil
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (Entry, error) {
	var frame [4]byte
	if _, err := io.ReadFull(r.gz, frame[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("read entry frame: %w", err)
	}

	headerLength := binary.BigEndian.Uint32(frame[:])
	if headerLength > maxHeaderLength {
		return Entry{}, fmt.Errorf("entry header length %d exceeds maximum %d", headerLength, maxHeaderLength)
	}

	headerBytes := make([]byte, headerLength)
	if _, err := io.ReadFull(r.gz, headerBytes); err != nil {
		return Entry{}, fmt.Errorf("read entry header: %w", err)
	}
	var header entryHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Entry{}, fmt.Errorf("decode entry header: %w", err)
	}
	if header.Size < 0 {
		return Entry{}, fmt.Errorf("invalid entry payload size %d", header.Size)
	}

	payload := make([]byte, header.Size)
	if _, err := io.ReadFull(r.gz, payload); err != nil {
		return Entry{}, fmt.Errorf("read entry payload: %w", err)
	}
	if xxhash.Sum64(payload) != header.Checksum {
		return Entry{}, ErrChecksum
	}

	return Entry{
		Channel:  header.Channel,
		Payload:  payload,
		Metadata: header.Metadata,
		Time:     time.Unix(0, header.Time),
	}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	r.gz.Close()
	return r.file.Close()
}
