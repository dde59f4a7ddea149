package recordcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

// fakeStore is an in-memory RecordStore that counts reads.
type fakeStore struct {
	recs    map[string]domain.DnsRecord
	gets    int
	keysErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]domain.DnsRecord)}
}

func (f *fakeStore) Get(_ context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	f.gets++
	rec, ok := f.recs[key.String()]
	if !ok {
		return domain.DnsRecord{}, records.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeStore) Put(_ context.Context, record domain.DnsRecord) error {
	f.recs[record.Key.String()] = record.Clone()
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key domain.RecordKey) error {
	delete(f.recs, key.String())
	return nil
}

func (f *fakeStore) Keys(_ context.Context) ([]domain.RecordKey, error) {
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	var keys []domain.RecordKey
	for _, rec := range f.recs {
		keys = append(keys, rec.Key)
	}
	return keys, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestRecord(t *testing.T, name string) domain.DnsRecord {
	t.Helper()
	key, err := domain.NewRecordKey("FOO", name)
	require.NoError(t, err)
	rec, err := domain.NewDnsRecord(key)
	require.NoError(t, err)
	task, err := domain.NewTaskInfo("TASK1_ARN", domain.EniInfo{EniID: "eni-1", PublicIPv4: "1.1.1.1"})
	require.NoError(t, err)
	require.NoError(t, rec.PutTask(task))
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Size: 10})
	require.Error(t, err)

	_, err = New(Options{Store: newFakeStore(), Size: 0})
	require.Error(t, err)

	cache, err := New(Options{Store: newFakeStore(), Size: 10})
	require.NoError(t, err)
	require.NotNil(t, cache)
}

func TestCache_UnknownNameShortCircuits(t *testing.T) {
	store := newFakeStore()
	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)
	require.NoError(t, cache.Warm(context.Background()))

	key, err := domain.NewRecordKey("FOO", "never-written.myexample.com")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), key)
	require.ErrorIs(t, err, records.ErrNotFound)
	require.Zero(t, store.gets, "unseen names must not reach the store")
}

func TestCache_WarmMakesExistingKeysVisible(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecord(t, "test.myexample.com")
	require.NoError(t, store.Put(context.Background(), rec))

	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)
	require.NoError(t, cache.Warm(context.Background()))

	got, err := cache.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.True(t, rec.Equal(got))
	require.Equal(t, 1, store.gets)

	// second read is served from the LRU
	_, err = cache.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.Equal(t, 1, store.gets)
	require.Equal(t, 1, cache.Len())
}

func TestCache_Warm_StoreError(t *testing.T) {
	store := newFakeStore()
	store.keysErr = errors.New("scan failed")

	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)
	require.ErrorIs(t, cache.Warm(context.Background()), store.keysErr)
}

func TestCache_PutWritesThrough(t *testing.T) {
	store := newFakeStore()
	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)

	rec := newTestRecord(t, "test.myexample.com")
	require.NoError(t, cache.Put(context.Background(), rec))
	require.Len(t, store.recs, 1)

	// visible without Warm, served from cache
	got, err := cache.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.True(t, rec.Equal(got))
	require.Zero(t, store.gets)
}

func TestCache_DeleteEvicts(t *testing.T) {
	store := newFakeStore()
	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)

	rec := newTestRecord(t, "test.myexample.com")
	require.NoError(t, cache.Put(context.Background(), rec))
	require.NoError(t, cache.Delete(context.Background(), rec.Key))
	require.Zero(t, cache.Len())

	// the prefilter still remembers the name, so the miss comes from the store
	_, err = cache.Get(context.Background(), rec.Key)
	require.ErrorIs(t, err, records.ErrNotFound)
	require.Equal(t, 1, store.gets)
}

func TestCache_ReturnedRecordIsIsolated(t *testing.T) {
	store := newFakeStore()
	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)

	rec := newTestRecord(t, "test.myexample.com")
	require.NoError(t, cache.Put(context.Background(), rec))

	got, err := cache.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	got.RemoveTask("TASK1_ARN")
	got.SetIPv4s("9.9.9.9")

	again, err := cache.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.True(t, rec.Equal(again), "mutating a returned record must not corrupt the cache")
}

func TestCache_KeysDelegates(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecord(t, "test.myexample.com")
	require.NoError(t, store.Put(context.Background(), rec))

	cache, err := New(Options{Store: store, Size: 10})
	require.NoError(t, err)

	keys, err := cache.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.RecordKey{rec.Key}, keys)
}
