// Package state persists consumer offsets so a restarted daemon
// resumes buffering where it left off instead of replaying or skipping
// the stream.
package state

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	dirMode      = 0o755
	offsetPrefix = "offset:"
	offsetBase   = 10
	offsetBits   = 64
)

// ErrNoOffset is returned by GetOffset when no offset has been saved
// for the topic/partition yet.
var ErrNoOffset = errors.New("offset not found")

// Store wraps a BadgerDB instance (pure Go, no CGO) holding one key per
// topic/partition.
type Store struct {
	db   *badger.DB
	path string
}

// Open creates the state directory if needed and opens the database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, fmt.Errorf("create state path: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func offsetKey(topic string, partition int) []byte {
	return fmt.Appendf(nil, "%s%s:%d", offsetPrefix, topic, partition)
}

// SaveOffset records the last committed offset for a topic partition.
func (s *Store) SaveOffset(topic string, partition int, offset int64) error {
	value := strconv.FormatInt(offset, offsetBase)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(offsetKey(topic, partition), []byte(value))
	})
}

// GetOffset returns the last committed offset for a topic partition, or
// ErrNoOffset when none has been saved.
func (s *Store) GetOffset(topic string, partition int) (int64, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(offsetKey(topic, partition))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoOffset
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	offset, err := strconv.ParseInt(string(value), offsetBase, offsetBits)
	if err != nil {
		return 0, fmt.Errorf("corrupt offset for %s/%d: %w", topic, partition, err)
	}
	return offset, nil
}

// PartitionsByTopic counts saved partitions per topic, for startup
// logging.
func (s *Store) PartitionsByTopic() (map[string]int, error) {
	stats := make(map[string]int)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(offsetPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())[len(offsetPrefix):]
			if idx := strings.LastIndex(key, ":"); idx > 0 {
				stats[key[:idx]]++
			}
		}
		return nil
	})
	return stats, err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
