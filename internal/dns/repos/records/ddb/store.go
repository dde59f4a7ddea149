// Package ddb implements the RecordStore port on a DynamoDB table keyed
// by (hosted_zone_id, record_name).
package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

// Client is the slice of the DynamoDB API the store uses. The concrete
// *dynamodb.Client satisfies it; tests substitute a mock.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store is a DynamoDB-backed record store.
type Store struct {
	client Client
	table  string
}

// New returns a Store over the given table.
func New(client Client, table string) *Store {
	return &Store{client: client, table: table}
}

// Get fetches and decodes the item for key. Reads are strongly
// consistent: the reconciler reads its own prior writes each cycle.
func (s *Store) Get(ctx context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            records.KeyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.DnsRecord{}, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return domain.DnsRecord{}, records.ErrNotFound
	}
	return records.Decode(out.Item)
}

// Put encodes and stores the record, replacing any existing item.
func (s *Store) Put(ctx context.Context, record domain.DnsRecord) error {
	item, err := records.Encode(record)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", record.Key, err)
	}
	return nil
}

// Delete removes the item for key. DynamoDB treats deleting an absent
// item as success, matching the port contract.
func (s *Store) Delete(ctx context.Context, key domain.RecordKey) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       records.KeyAttributes(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", key, err)
	}
	return nil
}

// Keys scans the table's key attributes and returns every record key.
func (s *Store) Keys(ctx context.Context) ([]domain.RecordKey, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String(records.AttrHostedZoneID + ", " + records.AttrRecordName),
	})

	var keys []domain.RecordKey
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", s.table, err)
		}
		for _, item := range page.Items {
			key, err := records.DecodeKey(item)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (s *Store) Close() error { return nil }

var _ records.RecordStore = (*Store)(nil)
