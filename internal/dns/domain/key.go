// Package domain contains the record model for task-backed DNS names:
// the record identity, the per-task network interface details, and the
// aggregate record that maps a DNS name to the public IPv4 addresses
// contributed by running tasks.
package domain

import "fmt"

// RecordKey identifies a managed DNS record: the hosted zone it lives in
// and the fully-qualified record name within that zone. It is immutable
// and doubles as the storage primary key.
type RecordKey struct {
	HostedZoneID string
	RecordName   string
}

// NewRecordKey constructs a validated RecordKey.
func NewRecordKey(hostedZoneID, recordName string) (RecordKey, error) {
	k := RecordKey{
		HostedZoneID: hostedZoneID,
		RecordName:   recordName,
	}
	if err := k.Validate(); err != nil {
		return RecordKey{}, err
	}
	return k, nil
}

// Validate checks that both key components are present.
func (k RecordKey) Validate() error {
	if k.HostedZoneID == "" {
		return fmt.Errorf("hosted zone id must not be empty")
	}
	if k.RecordName == "" {
		return fmt.Errorf("record name must not be empty")
	}
	return nil
}

// String renders the key in "zone/name" form for logs and cache keys.
func (k RecordKey) String() string {
	return k.HostedZoneID + "/" + k.RecordName
}
