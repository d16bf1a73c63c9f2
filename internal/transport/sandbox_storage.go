package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMessages = []byte("sandbox_messages")
	bucketIndex    = []byte("sandbox_index")
)

// CapturedMessage is a message held by the sandbox instead of being
// delivered.
type CapturedMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html,omitempty"`
	Text       string    `json:"text,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// SandboxStorage persists captured messages in BoltDB so previews survive
// restarts.
type SandboxStorage struct {
	db *bolt.DB
}

// NewSandboxStorage creates sandbox storage on the provided BoltDB instance.
func NewSandboxStorage(db *bolt.DB) (*SandboxStorage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketIndex)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox buckets: %w", err)
	}
	return &SandboxStorage{db: db}, nil
}

// Save stores a captured message.
func (s *SandboxStorage) Save(msg *CapturedMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := tx.Bucket(bucketMessages).Put([]byte(msg.ID), data); err != nil {
			return err
		}
		// Timestamp-prefixed index key keeps listing in capture order.
		return tx.Bucket(bucketIndex).Put(makeIndexKey(msg.CapturedAt, msg.ID), []byte(msg.ID))
	})
}

// Get returns a captured message by id, or nil if not found.
func (s *SandboxStorage) Get(id string) (*CapturedMessage, error) {
	var msg *CapturedMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMessages).Get([]byte(id))
		if data == nil {
			return nil
		}
		msg = &CapturedMessage{}
		return json.Unmarshal(data, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// List returns the most recently captured messages, newest first.
func (s *SandboxStorage) List(limit int) ([]*CapturedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*CapturedMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		messages := tx.Bucket(bucketMessages)
		c := tx.Bucket(bucketIndex).Cursor()
		for k, id := c.Last(); k != nil && len(out) < limit; k, id = c.Prev() {
			data := messages.Get(id)
			if data == nil {
				continue
			}
			msg := &CapturedMessage{}
			if err := json.Unmarshal(data, msg); err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of captured messages.
func (s *SandboxStorage) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketMessages).Stats().KeyN
		return nil
	})
	return n, err
}

func makeIndexKey(ts time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(ts.UnixNano()))
	return append(key, id...)
}
