// Package records implements the persistence layer for task-backed DNS
// records: the codec between the domain model and its DynamoDB item
// representation, the DynamoDB-JSON rendering of items, and the
// RecordStore port implemented by the ddb and bolt backends.
//
// The codec is the contract other systems depend on: re-encoding a
// decoded item must reproduce it exactly, so the persisted shape
// (attribute names, nesting, and S/SS/M/L/NULL value tags) is fixed.
package records

import (
	"fmt"
	"sort"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jhearn/taskdns/internal/dns/domain"
)

// Persisted attribute names. These are shared with external consumers of
// the table and must not change.
const (
	AttrHostedZoneID = "hosted_zone_id"
	AttrRecordName   = "record_name"
	AttrIPv4s        = "ipv4s"
	AttrTaskInfo     = "task_info"
	AttrEnis         = "enis"
	AttrEniID        = "eni_id"
	AttrPublicIPv4   = "public_ipv4"
	AttrStoppedAt    = "stopped_datetime"
)

// Stop timestamps are ISO-8601 at microsecond precision, the form the
// original writers of this table emit: six fractional digits, or no
// fractional part at all when the microsecond is zero. Values carry no
// zone and are UTC by convention, so both forms round-trip
// byte-for-byte.
const (
	stoppedAtLayout        = "2006-01-02T15:04:05.000000"
	stoppedAtLayoutSeconds = "2006-01-02T15:04:05"
)

func parseStoppedAt(s string) (time.Time, error) {
	ts, err := time.Parse(stoppedAtLayout, s)
	if err != nil {
		ts, err = time.Parse(stoppedAtLayoutSeconds, s)
	}
	return ts, err
}

func formatStoppedAt(ts time.Time) string {
	ts = ts.UTC()
	if ts.Nanosecond() == 0 {
		return ts.Format(stoppedAtLayoutSeconds)
	}
	return ts.Format(stoppedAtLayout)
}

// Item is a persisted DNS record in the store's native representation.
type Item = map[string]ddbtypes.AttributeValue

// Decode rebuilds a domain.DnsRecord from its persisted item. Malformed
// items fail with a *DecodeError naming the offending attribute path;
// nothing is silently dropped or repaired, and no partial record is
// returned.
func Decode(item Item) (domain.DnsRecord, error) {
	key, err := DecodeKey(item)
	if err != nil {
		return domain.DnsRecord{}, err
	}

	rec := domain.DnsRecord{
		Key:      key,
		TaskInfo: make(map[string]domain.TaskInfo),
	}

	if av, ok := item[AttrIPv4s]; ok {
		ss, ok := av.(*ddbtypes.AttributeValueMemberSS)
		if !ok {
			return domain.DnsRecord{}, decodeErrorf(AttrIPv4s, "expected SS attribute, got %s", attrTag(av))
		}
		seen := make(map[string]struct{}, len(ss.Value))
		for _, ip := range ss.Value {
			if ip == "" {
				return domain.DnsRecord{}, decodeErrorf(AttrIPv4s, "must not contain empty addresses")
			}
			if _, dup := seen[ip]; dup {
				return domain.DnsRecord{}, decodeErrorf(AttrIPv4s, "duplicate address %s", ip)
			}
			seen[ip] = struct{}{}
		}
		rec.IPv4s = make([]string, len(ss.Value))
		copy(rec.IPv4s, ss.Value)
	}

	tasksAttr, ok := item[AttrTaskInfo]
	if !ok {
		return domain.DnsRecord{}, decodeErrorf(AttrTaskInfo, "missing required attribute")
	}
	tasks, ok := tasksAttr.(*ddbtypes.AttributeValueMemberM)
	if !ok {
		return domain.DnsRecord{}, decodeErrorf(AttrTaskInfo, "expected M attribute, got %s", attrTag(tasksAttr))
	}
	for arn, entry := range tasks.Value {
		task, err := decodeTask(arn, entry)
		if err != nil {
			return domain.DnsRecord{}, err
		}
		rec.TaskInfo[arn] = task
	}

	if err := rec.Validate(); err != nil {
		return domain.DnsRecord{}, decodeErrorf(AttrTaskInfo, "%v", err)
	}
	return rec, nil
}

// DecodeKey extracts just the record identity from an item. Used both by
// Decode and by key-only projections (store scans).
func DecodeKey(item Item) (domain.RecordKey, error) {
	zone, err := stringAttr(item, AttrHostedZoneID)
	if err != nil {
		return domain.RecordKey{}, err
	}
	name, err := stringAttr(item, AttrRecordName)
	if err != nil {
		return domain.RecordKey{}, err
	}
	return domain.RecordKey{HostedZoneID: zone, RecordName: name}, nil
}

// decodeTask rebuilds one task entry. The task ARN is carried only as
// the task_info map key, so it is filled in from there, which makes the
// key-equals-field invariant hold by construction.
func decodeTask(arn string, av ddbtypes.AttributeValue) (domain.TaskInfo, error) {
	path := AttrTaskInfo + "." + arn
	entry, ok := av.(*ddbtypes.AttributeValueMemberM)
	if !ok {
		return domain.TaskInfo{}, decodeErrorf(path, "expected M attribute, got %s", attrTag(av))
	}

	task := domain.TaskInfo{TaskARN: arn}

	enisAttr, ok := entry.Value[AttrEnis]
	if !ok {
		return domain.TaskInfo{}, decodeErrorf(path+"."+AttrEnis, "missing required attribute")
	}
	enis, ok := enisAttr.(*ddbtypes.AttributeValueMemberL)
	if !ok {
		return domain.TaskInfo{}, decodeErrorf(path+"."+AttrEnis, "expected L attribute, got %s", attrTag(enisAttr))
	}
	task.Enis = make([]domain.EniInfo, 0, len(enis.Value))
	for i, elem := range enis.Value {
		eni, err := decodeEni(fmt.Sprintf("%s.%s[%d]", path, AttrEnis, i), elem)
		if err != nil {
			return domain.TaskInfo{}, err
		}
		task.Enis = append(task.Enis, eni)
	}

	if av, ok := entry.Value[AttrStoppedAt]; ok {
		stoppedPath := path + "." + AttrStoppedAt
		s, ok := av.(*ddbtypes.AttributeValueMemberS)
		if !ok {
			return domain.TaskInfo{}, decodeErrorf(stoppedPath, "expected S attribute, got %s", attrTag(av))
		}
		ts, err := parseStoppedAt(s.Value)
		if err != nil {
			return domain.TaskInfo{}, decodeErrorf(stoppedPath, "invalid timestamp %q", s.Value)
		}
		task.StoppedAt = &ts
	}

	for name := range entry.Value {
		if name != AttrEnis && name != AttrStoppedAt {
			return domain.TaskInfo{}, decodeErrorf(path+"."+name, "unknown attribute")
		}
	}

	return task, nil
}

// decodeEni rebuilds one ENI entry. public_ipv4 is always present: S
// when assigned, NULL while the orchestrator has not assigned one yet.
func decodeEni(path string, av ddbtypes.AttributeValue) (domain.EniInfo, error) {
	entry, ok := av.(*ddbtypes.AttributeValueMemberM)
	if !ok {
		return domain.EniInfo{}, decodeErrorf(path, "expected M attribute, got %s", attrTag(av))
	}

	var eni domain.EniInfo

	idAttr, ok := entry.Value[AttrEniID]
	if !ok {
		return domain.EniInfo{}, decodeErrorf(path+"."+AttrEniID, "missing required attribute")
	}
	id, ok := idAttr.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return domain.EniInfo{}, decodeErrorf(path+"."+AttrEniID, "expected S attribute, got %s", attrTag(idAttr))
	}
	if id.Value == "" {
		return domain.EniInfo{}, decodeErrorf(path+"."+AttrEniID, "must not be empty")
	}
	eni.EniID = id.Value

	ipAttr, ok := entry.Value[AttrPublicIPv4]
	if !ok {
		return domain.EniInfo{}, decodeErrorf(path+"."+AttrPublicIPv4, "missing required attribute")
	}
	switch ip := ipAttr.(type) {
	case *ddbtypes.AttributeValueMemberS:
		eni.PublicIPv4 = ip.Value
	case *ddbtypes.AttributeValueMemberNULL:
		// address not assigned yet
	default:
		return domain.EniInfo{}, decodeErrorf(path+"."+AttrPublicIPv4, "expected S or NULL attribute, got %s", attrTag(ipAttr))
	}

	for name := range entry.Value {
		if name != AttrEniID && name != AttrPublicIPv4 {
			return domain.EniInfo{}, decodeErrorf(path+"."+name, "unknown attribute")
		}
	}

	return eni, nil
}

// Encode renders a domain.DnsRecord as its persisted item. The output is
// structurally identical to what Decode accepts, so Encode(Decode(x))
// reproduces x for any well-formed item and Decode(Encode(r)) reproduces
// r for any valid record.
func Encode(rec domain.DnsRecord) (Item, error) {
	if err := rec.Validate(); err != nil {
		return nil, encodeErrorf("", "%v", err)
	}

	item := Item{
		AttrHostedZoneID: &ddbtypes.AttributeValueMemberS{Value: rec.Key.HostedZoneID},
		AttrRecordName:   &ddbtypes.AttributeValueMemberS{Value: rec.Key.RecordName},
	}

	// DynamoDB rejects empty string sets, so an empty address set is
	// encoded as an absent attribute.
	if len(rec.IPv4s) > 0 {
		ips := make([]string, len(rec.IPv4s))
		copy(ips, rec.IPv4s)
		item[AttrIPv4s] = &ddbtypes.AttributeValueMemberSS{Value: ips}
	}

	tasks := make(map[string]ddbtypes.AttributeValue, len(rec.TaskInfo))
	arns := make([]string, 0, len(rec.TaskInfo))
	for arn := range rec.TaskInfo {
		arns = append(arns, arn)
	}
	sort.Strings(arns)
	for _, arn := range arns {
		tasks[arn] = encodeTask(rec.TaskInfo[arn])
	}
	item[AttrTaskInfo] = &ddbtypes.AttributeValueMemberM{Value: tasks}

	return item, nil
}

func encodeTask(task domain.TaskInfo) ddbtypes.AttributeValue {
	enis := make([]ddbtypes.AttributeValue, 0, len(task.Enis))
	for _, eni := range task.Enis {
		enis = append(enis, encodeEni(eni))
	}

	entry := map[string]ddbtypes.AttributeValue{
		AttrEnis: &ddbtypes.AttributeValueMemberL{Value: enis},
	}
	if task.StoppedAt != nil {
		entry[AttrStoppedAt] = &ddbtypes.AttributeValueMemberS{
			Value: formatStoppedAt(*task.StoppedAt),
		}
	}
	return &ddbtypes.AttributeValueMemberM{Value: entry}
}

func encodeEni(eni domain.EniInfo) ddbtypes.AttributeValue {
	entry := map[string]ddbtypes.AttributeValue{
		AttrEniID: &ddbtypes.AttributeValueMemberS{Value: eni.EniID},
	}
	if eni.PublicIPv4 == "" {
		entry[AttrPublicIPv4] = &ddbtypes.AttributeValueMemberNULL{Value: true}
	} else {
		entry[AttrPublicIPv4] = &ddbtypes.AttributeValueMemberS{Value: eni.PublicIPv4}
	}
	return &ddbtypes.AttributeValueMemberM{Value: entry}
}

// KeyAttributes renders just the primary key attributes for an item,
// for GetItem/DeleteItem requests.
func KeyAttributes(key domain.RecordKey) Item {
	return Item{
		AttrHostedZoneID: &ddbtypes.AttributeValueMemberS{Value: key.HostedZoneID},
		AttrRecordName:   &ddbtypes.AttributeValueMemberS{Value: key.RecordName},
	}
}

// attrTag names an attribute value's wire type tag for error messages.
func attrTag(av ddbtypes.AttributeValue) string {
	switch av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return "S"
	case *ddbtypes.AttributeValueMemberSS:
		return "SS"
	case *ddbtypes.AttributeValueMemberM:
		return "M"
	case *ddbtypes.AttributeValueMemberL:
		return "L"
	case *ddbtypes.AttributeValueMemberNULL:
		return "NULL"
	default:
		return fmt.Sprintf("%T", av)
	}
}

func stringAttr(item Item, name string) (string, error) {
	av, ok := item[name]
	if !ok {
		return "", decodeErrorf(name, "missing required attribute")
	}
	s, ok := av.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", decodeErrorf(name, "expected S attribute, got %s", attrTag(av))
	}
	if s.Value == "" {
		return "", decodeErrorf(name, "must not be empty")
	}
	return s.Value, nil
}
