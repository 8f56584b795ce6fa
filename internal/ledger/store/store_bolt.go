package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"rollguard/internal/ledger/models"
	"rollguard/pkg/platform/sentinel"
)

const chainBucketPrefix = "chain:"

// BoltStore persists chains in a single bbolt file, one bucket per chain,
// keyed by big-endian sequence so cursor order is chain order.
type BoltStore struct {
	db *bbolt.DB
}

type boltBlock struct {
	PreviousHash string `json:"previous_hash"`
	Payload      []byte `json:"payload"`
	Timestamp    string `json:"timestamp"`
	CurrentHash  string `json:"current_hash"`
}

// NewBolt opens (or creates) the ledger file at path.
func NewBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Last(_ context.Context, chain string) (*models.Block, error) {
	var out *models.Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(chain))
		if b == nil {
			return sentinel.ErrNotFound
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return sentinel.ErrNotFound
		}
		block, err := decodeBolt(chain, k, v)
		if err != nil {
			return err
		}
		out = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Append(_ context.Context, block models.Block) error {
	data, err := json.Marshal(boltBlock{
		PreviousHash: block.PreviousHash,
		Payload:      block.Payload,
		Timestamp:    block.TimestampString(),
		CurrentHash:  block.CurrentHash,
	})
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(block.Chain))
		if err != nil {
			return fmt.Errorf("create chain bucket: %w", err)
		}
		key := seqKey(block.Sequence)
		if b.Get(key) != nil {
			return fmt.Errorf("append block %d to %s: %w", block.Sequence, block.Chain, sentinel.ErrConflict)
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) Get(_ context.Context, chain string, seq int64) (*models.Block, error) {
	var out *models.Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(chain))
		if b == nil || seq < 0 {
			return sentinel.ErrNotFound
		}
		key := seqKey(seq)
		v := b.Get(key)
		if v == nil {
			return sentinel.ErrNotFound
		}
		block, err := decodeBolt(chain, key, v)
		if err != nil {
			return err
		}
		out = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Range(_ context.Context, chain string, from int64, limit int) ([]models.Block, error) {
	if from < 0 {
		from = 0
	}
	var out []models.Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(chain))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil && len(out) < limit; k, v = c.Next() {
			block, err := decodeBolt(chain, k, v)
			if err != nil {
				return err
			}
			out = append(out, *block)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Count(_ context.Context, chain string) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketName(chain)); b != nil {
			n = int64(b.Stats().KeyN)
		}
		return nil
	})
	return n, err
}

func bucketName(chain string) []byte {
	return []byte(chainBucketPrefix + chain)
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

func decodeBolt(chain string, k, v []byte) (*models.Block, error) {
	var raw boltBlock
	if err := json.Unmarshal(v, &raw); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	ts, err := time.Parse(models.TimestampLayout, raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("decode block timestamp: %w", err)
	}
	return &models.Block{
		Chain:        chain,
		Sequence:     int64(binary.BigEndian.Uint64(k)),
		PreviousHash: raw.PreviousHash,
		Payload:      raw.Payload,
		Timestamp:    ts,
		CurrentHash:  raw.CurrentHash,
	}, nil
}
