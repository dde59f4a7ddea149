package domain

import (
	"fmt"
	"sort"
)

// DnsRecord aggregates everything known about one managed DNS name: the
// tasks currently (or recently) backing it and the persisted set of
// public IPv4 addresses published for it.
//
// IPv4s is the authoritative persisted set and round-trips through the
// codec untouched. It is allowed to lag TaskInfo mid-reconcile (a stopped
// task's addresses are withdrawn before its entry is dropped), so it is
// never recomputed behind the caller's back; DerivedIPv4s provides the
// recomputed view.
type DnsRecord struct {
	Key RecordKey

	// TaskInfo maps task ARN to task details. The map key always equals
	// the entry's TaskARN field.
	TaskInfo map[string]TaskInfo

	// IPv4s is the persisted address set in stored order, duplicate-free.
	IPv4s []string
}

// NewDnsRecord constructs an empty record for the given key.
func NewDnsRecord(key RecordKey) (DnsRecord, error) {
	if err := key.Validate(); err != nil {
		return DnsRecord{}, err
	}
	return DnsRecord{
		Key:      key,
		TaskInfo: make(map[string]TaskInfo),
	}, nil
}

// Validate checks the record's structural invariants: a valid key, map
// keys agreeing with their entries' ARNs, valid tasks, and a
// duplicate-free address set.
func (r DnsRecord) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	for arn, task := range r.TaskInfo {
		if arn != task.TaskARN {
			return fmt.Errorf("task map key %q does not match task arn %q", arn, task.TaskARN)
		}
		if err := task.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(r.IPv4s))
	for _, ip := range r.IPv4s {
		if ip == "" {
			return fmt.Errorf("ipv4 set must not contain empty addresses")
		}
		if _, dup := seen[ip]; dup {
			return fmt.Errorf("duplicate ipv4 %s", ip)
		}
		seen[ip] = struct{}{}
	}
	return nil
}

// PutTask replaces the record's entry for the task wholesale.
func (r *DnsRecord) PutTask(task TaskInfo) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if r.TaskInfo == nil {
		r.TaskInfo = make(map[string]TaskInfo)
	}
	r.TaskInfo[task.TaskARN] = task
	return nil
}

// RemoveTask drops the entry for the given task ARN, if present.
func (r *DnsRecord) RemoveTask(taskARN string) {
	delete(r.TaskInfo, taskARN)
}

// SetIPv4s replaces the persisted address set. Duplicates are collapsed;
// first occurrence wins for ordering.
func (r *DnsRecord) SetIPv4s(ips ...string) {
	seen := make(map[string]struct{}, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	if len(out) == 0 {
		r.IPv4s = nil
		return
	}
	r.IPv4s = out
}

// SortedIPv4s returns the persisted address set in sorted order.
func (r DnsRecord) SortedIPv4s() []string {
	out := make([]string, len(r.IPv4s))
	copy(out, r.IPv4s)
	sort.Strings(out)
	return out
}

// DerivedIPv4s recomputes the address set from TaskInfo: every assigned
// PublicIPv4 across every task's ENIs, sorted and duplicate-free. This
// is a convenience view and is never persisted.
func (r DnsRecord) DerivedIPv4s() []string {
	return r.collectIPv4s(false)
}

// RunningIPv4s is DerivedIPv4s restricted to tasks that have not
// stopped. This is the set the reconciler publishes.
func (r DnsRecord) RunningIPv4s() []string {
	return r.collectIPv4s(true)
}

func (r DnsRecord) collectIPv4s(runningOnly bool) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, task := range r.TaskInfo {
		if runningOnly && task.Stopped() {
			continue
		}
		for _, ip := range task.PublicIPv4s() {
			if _, dup := seen[ip]; dup {
				continue
			}
			seen[ip] = struct{}{}
			out = append(out, ip)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the record, safe to mutate without
// affecting the original. Used by caching layers.
func (r DnsRecord) Clone() DnsRecord {
	out := r
	if r.TaskInfo != nil {
		out.TaskInfo = make(map[string]TaskInfo, len(r.TaskInfo))
		for arn, task := range r.TaskInfo {
			out.TaskInfo[arn] = task.Clone()
		}
	}
	if r.IPv4s != nil {
		out.IPv4s = make([]string, len(r.IPv4s))
		copy(out.IPv4s, r.IPv4s)
	}
	return out
}

// Empty reports whether the record carries no tasks and no addresses.
// An empty record is the caller's cue to delete the item and release
// the DNS name.
func (r DnsRecord) Empty() bool {
	return len(r.TaskInfo) == 0 && len(r.IPv4s) == 0
}

// Equal reports whether two records carry the same values. Tasks are
// compared per ARN and the address sets as sets, ignoring stored order.
func (r DnsRecord) Equal(other DnsRecord) bool {
	if r.Key != other.Key {
		return false
	}
	if len(r.TaskInfo) != len(other.TaskInfo) {
		return false
	}
	for arn, task := range r.TaskInfo {
		match, ok := other.TaskInfo[arn]
		if !ok || !task.Equal(match) {
			return false
		}
	}
	if len(r.IPv4s) != len(other.IPv4s) {
		return false
	}
	mine := r.SortedIPv4s()
	theirs := other.SortedIPv4s()
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	return true
}
