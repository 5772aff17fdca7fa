package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Namespace stored as one bbolt bucket.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (or creates) the database file and ensures the bucket exists.
func OpenBolt(path, namespace string) (*Bolt, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	bucket := []byte(namespace)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", namespace, err)
	}

	return &Bolt{db: db, bucket: bucket}, nil
}

// Open begins a writable transaction on the bucket.
func (b *Bolt) Open() (Scope, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	bkt := tx.Bucket(b.bucket)
	if bkt == nil {
		tx.Rollback()
		return nil, fmt.Errorf("bucket %q missing", b.bucket)
	}
	return &boltScope{tx: tx, bkt: bkt}, nil
}

// Durable is always true for a bbolt namespace.
func (b *Bolt) Durable() bool { return true }

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// boltScope buffers nothing: puts go straight into the open transaction,
// which is committed (and fsynced) by Close.
type boltScope struct {
	tx     *bolt.Tx
	bkt    *bolt.Bucket
	err    error
	closed bool
}

var errScopeClosed = errors.New("store: scope closed")

// Has reports whether key holds a readable 4-byte value; a malformed value
// counts as absent so callers rewrite it.
func (s *boltScope) Has(key string) bool {
	_, ok := s.get(key)
	return ok
}

func (s *boltScope) get(key string) ([]byte, bool) {
	if s.closed {
		return nil, false
	}
	v := s.bkt.Get([]byte(key))
	if len(v) != 4 {
		return nil, false
	}
	return v, true
}

func (s *boltScope) put(key string, v uint32) {
	if s.closed {
		s.err = errScopeClosed
		return
	}
	if s.err != nil {
		return
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	if err := s.bkt.Put([]byte(key), buf); err != nil {
		s.err = fmt.Errorf("put %s: %w", key, err)
	}
}

func (s *boltScope) GetInt(key string, def int32) int32 {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	return int32(binary.BigEndian.Uint32(v))
}

func (s *boltScope) PutInt(key string, value int32) {
	s.put(key, uint32(value))
}

func (s *boltScope) GetUint(key string, def uint32) uint32 {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	return binary.BigEndian.Uint32(v)
}

func (s *boltScope) PutUint(key string, value uint32) {
	s.put(key, value)
}

// Close commits the transaction. If any put failed the transaction is rolled
// back and that error returned, so either every write in the scope lands or none.
func (s *boltScope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.err != nil {
		s.tx.Rollback()
		return s.err
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
