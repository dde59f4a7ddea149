// Package bolt implements the RecordStore port on a local bbolt file.
// Items are persisted as DynamoDB JSON, so a bolt-backed deployment and
// a table export are byte-compatible. Intended for development and
// single-host setups.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

var bucketRecords = []byte("records")

// keySep joins the two key components; neither may contain a NUL.
const keySep = byte(0x00)

// Store is a bbolt-backed record store.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures the
// records bucket exists.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Get fetches and decodes the record for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketRecords).Get(storageKey(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return domain.DnsRecord{}, fmt.Errorf("bolt get %s: %w", key, err)
	}
	if data == nil {
		return domain.DnsRecord{}, records.ErrNotFound
	}
	item, err := records.UnmarshalItem(data)
	if err != nil {
		return domain.DnsRecord{}, fmt.Errorf("bolt get %s: %w", key, err)
	}
	return records.Decode(item)
}

// Put encodes and stores the record, replacing any existing item.
func (s *Store) Put(ctx context.Context, record domain.DnsRecord) error {
	item, err := records.Encode(record)
	if err != nil {
		return err
	}
	data, err := records.MarshalItem(item)
	if err != nil {
		return fmt.Errorf("bolt put %s: %w", record.Key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put(storageKey(record.Key), data)
	})
	if err != nil {
		return fmt.Errorf("bolt put %s: %w", record.Key, err)
	}
	return nil
}

// Delete removes the item for key; absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key domain.RecordKey) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete(storageKey(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored record key.
func (s *Store) Keys(ctx context.Context) ([]domain.RecordKey, error) {
	var keys []domain.RecordKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, _ []byte) error {
			key, err := parseStorageKey(k)
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt keys: %w", err)
	}
	return keys, nil
}

func storageKey(key domain.RecordKey) []byte {
	k := make([]byte, 0, len(key.HostedZoneID)+1+len(key.RecordName))
	k = append(k, key.HostedZoneID...)
	k = append(k, keySep)
	k = append(k, key.RecordName...)
	return k
}

func parseStorageKey(k []byte) (domain.RecordKey, error) {
	idx := bytes.IndexByte(k, keySep)
	if idx < 0 {
		return domain.RecordKey{}, fmt.Errorf("malformed storage key %q", k)
	}
	return domain.RecordKey{
		HostedZoneID: string(k[:idx]),
		RecordName:   string(k[idx+1:]),
	}, nil
}

var _ records.RecordStore = (*Store)(nil)
