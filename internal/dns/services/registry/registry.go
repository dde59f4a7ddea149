// Package registry implements the record operations the reconciler
// performs each polling cycle: registering task network interfaces
// against a DNS name, marking tasks stopped, and retiring names once
// the last task is gone.
//
// Every operation is a read-modify-write of a single item through the
// RecordStore port. Task discovery and DNS publication stay with the
// caller; the registry only maintains the record state they share.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhearn/taskdns/internal/dns/common/clock"
	"github.com/jhearn/taskdns/internal/dns/common/log"
	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

// ErrTaskNotFound is returned when an operation names a task ARN the
// record does not carry.
var ErrTaskNotFound = errors.New("task not found on record")

// Options configures a Registry.
type Options struct {
	// Store is the record store. Required.
	Store records.RecordStore

	// Clock stamps task stop times. Defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to the global logger.
	Logger log.Logger
}

// Registry maintains DNS records over a RecordStore.
type Registry struct {
	store  records.RecordStore
	clock  clock.Clock
	logger log.Logger
}

// New constructs a Registry.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New("registry: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Registry{
		store:  opts.Store,
		clock:  opts.Clock,
		logger: opts.Logger,
	}, nil
}

// UpsertTask records the task's current network interfaces under the
// DNS name, creating the record on the name's first task assignment.
// The task entry is replaced wholesale and the published address set is
// recomputed from the tasks still running.
func (r *Registry) UpsertTask(ctx context.Context, key domain.RecordKey, task domain.TaskInfo) (domain.DnsRecord, error) {
	rec, err := r.load(ctx, key)
	if err != nil {
		return domain.DnsRecord{}, err
	}
	if err := rec.PutTask(task); err != nil {
		return domain.DnsRecord{}, fmt.Errorf("upsert task %s on %s: %w", task.TaskARN, key, err)
	}
	rec.SetIPv4s(rec.RunningIPv4s()...)

	if err := r.store.Put(ctx, rec); err != nil {
		return domain.DnsRecord{}, err
	}
	r.logger.Debug(map[string]any{
		"record":   key.String(),
		"task_arn": task.TaskARN,
		"ipv4s":    rec.SortedIPv4s(),
	}, "task registered")
	return rec, nil
}

// MarkTaskStopped stamps the task's stop time and withdraws its
// addresses from the published set. The task entry itself stays on the
// record until RemoveTask, so late pollers still see the stop marker.
func (r *Registry) MarkTaskStopped(ctx context.Context, key domain.RecordKey, taskARN string) (domain.DnsRecord, error) {
	rec, err := r.store.Get(ctx, key)
	if err != nil {
		return domain.DnsRecord{}, err
	}
	task, ok := rec.TaskInfo[taskARN]
	if !ok {
		return domain.DnsRecord{}, fmt.Errorf("mark stopped %s on %s: %w", taskARN, key, ErrTaskNotFound)
	}
	if !task.Stopped() {
		task = task.WithStoppedAt(r.clock.Now())
		if err := rec.PutTask(task); err != nil {
			return domain.DnsRecord{}, err
		}
	}
	rec.SetIPv4s(rec.RunningIPv4s()...)

	if err := r.store.Put(ctx, rec); err != nil {
		return domain.DnsRecord{}, err
	}
	r.logger.Info(map[string]any{
		"record":     key.String(),
		"task_arn":   taskARN,
		"stopped_at": task.StoppedAt,
	}, "task stopped")
	return rec, nil
}

// RemoveTask drops the task's entry. When the last task is removed the
// record is deleted and the DNS name released.
func (r *Registry) RemoveTask(ctx context.Context, key domain.RecordKey, taskARN string) error {
	rec, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if _, ok := rec.TaskInfo[taskARN]; !ok {
		return fmt.Errorf("remove task %s from %s: %w", taskARN, key, ErrTaskNotFound)
	}
	rec.RemoveTask(taskARN)
	rec.SetIPv4s(rec.RunningIPv4s()...)

	if rec.Empty() {
		if err := r.store.Delete(ctx, key); err != nil {
			return err
		}
		r.logger.Info(map[string]any{"record": key.String()}, "record released")
		return nil
	}

	if err := r.store.Put(ctx, rec); err != nil {
		return err
	}
	r.logger.Debug(map[string]any{
		"record":   key.String(),
		"task_arn": taskARN,
		"ipv4s":    rec.SortedIPv4s(),
	}, "task removed")
	return nil
}

// PublishableIPv4s returns the record's published address set, sorted.
// This is what the DNS updater turns into A records.
func (r *Registry) PublishableIPv4s(ctx context.Context, key domain.RecordKey) ([]string, error) {
	rec, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return rec.SortedIPv4s(), nil
}

// load fetches the record for key, creating a fresh one if the name has
// no record yet.
func (r *Registry) load(ctx context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	rec, err := r.store.Get(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return domain.DnsRecord{}, err
	}
	return domain.NewDnsRecord(key)
}
