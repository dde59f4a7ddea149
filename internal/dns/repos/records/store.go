package records

import (
	"context"
	"errors"

	"github.com/jhearn/taskdns/internal/dns/domain"
)

// ErrNotFound is returned by RecordStore.Get when no item exists for the
// requested key.
var ErrNotFound = errors.New("record not found")

// RecordStore is the persistence port for DNS records. Implementations
// provide single-item get/put/delete keyed by RecordKey; transactional
// semantics beyond that are deliberately not part of the port.
type RecordStore interface {
	// Get fetches the record for key, or ErrNotFound.
	Get(ctx context.Context, key domain.RecordKey) (domain.DnsRecord, error)

	// Put stores the record wholesale, replacing any existing item.
	Put(ctx context.Context, record domain.DnsRecord) error

	// Delete removes the item for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key domain.RecordKey) error

	// Keys lists the keys of all stored records.
	Keys(ctx context.Context) ([]domain.RecordKey, error)

	// Close releases any resources held by the store.
	Close() error
}
