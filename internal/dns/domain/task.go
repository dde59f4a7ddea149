package domain

import (
	"fmt"
	"time"
)

// EniInfo describes one elastic network interface attached to a task.
// PublicIPv4 is empty until the orchestrator assigns an address.
// EniInfo is an immutable value type compared by value.
type EniInfo struct {
	EniID      string
	PublicIPv4 string
}

// Equal reports whether two ENI entries carry the same values.
func (e EniInfo) Equal(other EniInfo) bool {
	return e == other
}

// TaskInfo describes one orchestrated task contributing addresses to a
// DNS record. Tasks are immutable once recorded: when a task's state
// changes its entry is replaced wholesale, never edited in place.
type TaskInfo struct {
	TaskARN string

	// StoppedAt is nil while the task is running and carries the
	// deprovisioning time (microsecond precision) once it stops.
	StoppedAt *time.Time

	// Enis preserves persisted order; order is irrelevant for equality.
	Enis []EniInfo
}

// NewTaskInfo constructs a validated, running TaskInfo.
func NewTaskInfo(taskARN string, enis ...EniInfo) (TaskInfo, error) {
	t := TaskInfo{
		TaskARN: taskARN,
		Enis:    enis,
	}
	if err := t.Validate(); err != nil {
		return TaskInfo{}, err
	}
	return t, nil
}

// Validate checks the task ARN and the uniqueness of ENI ids within the task.
func (t TaskInfo) Validate() error {
	if t.TaskARN == "" {
		return fmt.Errorf("task arn must not be empty")
	}
	seen := make(map[string]struct{}, len(t.Enis))
	for _, eni := range t.Enis {
		if eni.EniID == "" {
			return fmt.Errorf("task %s: eni id must not be empty", t.TaskARN)
		}
		if _, dup := seen[eni.EniID]; dup {
			return fmt.Errorf("task %s: duplicate eni id %s", t.TaskARN, eni.EniID)
		}
		seen[eni.EniID] = struct{}{}
	}
	return nil
}

// Stopped reports whether the task has been deprovisioned.
func (t TaskInfo) Stopped() bool {
	return t.StoppedAt != nil
}

// WithStoppedAt returns a copy of the task marked stopped at ts,
// normalized to UTC and truncated to the microsecond precision the
// persisted form carries.
func (t TaskInfo) WithStoppedAt(ts time.Time) TaskInfo {
	stopped := ts.UTC().Truncate(time.Microsecond)
	t.StoppedAt = &stopped
	return t
}

// PublicIPv4s returns the assigned addresses across the task's ENIs,
// in ENI order, skipping interfaces without an address.
func (t TaskInfo) PublicIPv4s() []string {
	var ips []string
	for _, eni := range t.Enis {
		if eni.PublicIPv4 != "" {
			ips = append(ips, eni.PublicIPv4)
		}
	}
	return ips
}

// Clone returns a deep copy of the task.
func (t TaskInfo) Clone() TaskInfo {
	out := t
	if t.StoppedAt != nil {
		stopped := *t.StoppedAt
		out.StoppedAt = &stopped
	}
	if t.Enis != nil {
		out.Enis = make([]EniInfo, len(t.Enis))
		copy(out.Enis, t.Enis)
	}
	return out
}

// Equal reports whether two tasks carry the same values. ENI order is
// irrelevant: entries are matched by ENI id, which Validate guarantees
// unique within a task.
func (t TaskInfo) Equal(other TaskInfo) bool {
	if t.TaskARN != other.TaskARN {
		return false
	}
	if (t.StoppedAt == nil) != (other.StoppedAt == nil) {
		return false
	}
	if t.StoppedAt != nil && !t.StoppedAt.Equal(*other.StoppedAt) {
		return false
	}
	if len(t.Enis) != len(other.Enis) {
		return false
	}
	byID := make(map[string]EniInfo, len(other.Enis))
	for _, eni := range other.Enis {
		byID[eni.EniID] = eni
	}
	for _, eni := range t.Enis {
		match, ok := byID[eni.EniID]
		if !ok || !eni.Equal(match) {
			return false
		}
	}
	return true
}
