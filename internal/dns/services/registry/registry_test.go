package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jhearn/taskdns/internal/dns/common/clock"
	"github.com/jhearn/taskdns/internal/dns/common/log"
	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

// fakeStore is an in-memory RecordStore tracking deletes.
type fakeStore struct {
	recs    map[string]domain.DnsRecord
	deletes int
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]domain.DnsRecord)}
}

func (f *fakeStore) Get(_ context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	if f.getErr != nil {
		return domain.DnsRecord{}, f.getErr
	}
	rec, ok := f.recs[key.String()]
	if !ok {
		return domain.DnsRecord{}, records.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeStore) Put(_ context.Context, record domain.DnsRecord) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.recs[record.Key.String()] = record.Clone()
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key domain.RecordKey) error {
	f.deletes++
	delete(f.recs, key.String())
	return nil
}

func (f *fakeStore) Keys(_ context.Context) ([]domain.RecordKey, error) {
	var keys []domain.RecordKey
	for _, rec := range f.recs {
		keys = append(keys, rec.Key)
	}
	return keys, nil
}

func (f *fakeStore) Close() error { return nil }

var testStopTime = time.Date(2020, 10, 4, 23, 47, 36, 322158000, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *fakeStore, *clock.MockClock) {
	t.Helper()
	store := newFakeStore()
	clk := &clock.MockClock{CurrentTime: testStopTime}
	reg, err := New(Options{Store: store, Clock: clk, Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	return reg, store, clk
}

func testRegistryKey(t *testing.T) domain.RecordKey {
	t.Helper()
	key, err := domain.NewRecordKey("FOO", "test.myexample.com")
	require.NoError(t, err)
	return key
}

func newRunningTask(t *testing.T, arn string, ips ...string) domain.TaskInfo {
	t.Helper()
	enis := make([]domain.EniInfo, 0, len(ips))
	for i, ip := range ips {
		enis = append(enis, domain.EniInfo{EniID: arn + "_ENI" + string(rune('1'+i)), PublicIPv4: ip})
	}
	task, err := domain.NewTaskInfo(arn, enis...)
	require.NoError(t, err)
	return task
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRegistry_UpsertTask_CreatesRecord(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	key := testRegistryKey(t)

	rec, err := reg.UpsertTask(context.Background(), key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)
	require.Equal(t, []string{"1.1.1.1"}, rec.SortedIPv4s())
	require.Len(t, store.recs, 1)
}

func TestRegistry_UpsertTask_AggregatesAcrossTasks(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)
	rec, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK2_ARN", "1.1.2.1", "1.1.2.2"))
	require.NoError(t, err)

	require.Equal(t, []string{"1.1.1.1", "1.1.2.1", "1.1.2.2"}, rec.SortedIPv4s())
	require.Len(t, rec.TaskInfo, 2)
}

func TestRegistry_UpsertTask_ReplacesWholesale(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)

	// the task's address changed; the old one must vanish
	rec, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "2.2.2.2"))
	require.NoError(t, err)
	require.Equal(t, []string{"2.2.2.2"}, rec.SortedIPv4s())
	require.Len(t, rec.TaskInfo, 1)
}

func TestRegistry_UpsertTask_StoreError(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	store.getErr = errors.New("backend down")

	_, err := reg.UpsertTask(context.Background(), testRegistryKey(t), newRunningTask(t, "TASK1_ARN"))
	require.ErrorIs(t, err, store.getErr)
}

func TestRegistry_MarkTaskStopped(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)
	_, err = reg.UpsertTask(ctx, key, newRunningTask(t, "TASK2_ARN", "1.1.2.1"))
	require.NoError(t, err)

	rec, err := reg.MarkTaskStopped(ctx, key, "TASK1_ARN")
	require.NoError(t, err)

	stopped := rec.TaskInfo["TASK1_ARN"]
	require.True(t, stopped.Stopped())
	require.Equal(t, clk.CurrentTime, *stopped.StoppedAt)

	// the stopped task's address is withdrawn but its entry remains
	require.Equal(t, []string{"1.1.2.1"}, rec.SortedIPv4s())
	require.Len(t, rec.TaskInfo, 2)
	require.Equal(t, []string{"1.1.1.1", "1.1.2.1"}, rec.DerivedIPv4s())
}

func TestRegistry_MarkTaskStopped_Idempotent(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)

	first, err := reg.MarkTaskStopped(ctx, key, "TASK1_ARN")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second, err := reg.MarkTaskStopped(ctx, key, "TASK1_ARN")
	require.NoError(t, err)
	require.Equal(t, *first.TaskInfo["TASK1_ARN"].StoppedAt, *second.TaskInfo["TASK1_ARN"].StoppedAt,
		"a second stop must not re-stamp the time")
}

func TestRegistry_MarkTaskStopped_UnknownTask(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN"))
	require.NoError(t, err)

	_, err = reg.MarkTaskStopped(ctx, key, "GHOST_ARN")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistry_RemoveTask(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)
	_, err = reg.UpsertTask(ctx, key, newRunningTask(t, "TASK2_ARN", "1.1.2.1"))
	require.NoError(t, err)

	require.NoError(t, reg.RemoveTask(ctx, key, "TASK1_ARN"))
	ips, err := reg.PublishableIPv4s(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []string{"1.1.2.1"}, ips)
	require.Zero(t, store.deletes)
}

func TestRegistry_RemoveTask_LastTaskReleasesRecord(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN", "1.1.1.1"))
	require.NoError(t, err)

	require.NoError(t, reg.RemoveTask(ctx, key, "TASK1_ARN"))
	require.Equal(t, 1, store.deletes)

	_, err = reg.PublishableIPv4s(ctx, key)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestRegistry_RemoveTask_UnknownTask(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	key := testRegistryKey(t)
	ctx := context.Background()

	_, err := reg.UpsertTask(ctx, key, newRunningTask(t, "TASK1_ARN"))
	require.NoError(t, err)

	err = reg.RemoveTask(ctx, key, "GHOST_ARN")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistry_PublishableIPv4s_MissingRecord(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.PublishableIPv4s(context.Background(), testRegistryKey(t))
	require.ErrorIs(t, err, records.ErrNotFound)
}
