package records

import "fmt"

// DecodeError reports a persisted item that does not conform to the
// record shape. Path identifies the offending attribute, e.g.
// "task_info.TASK1_ARN.enis[0].eni_id".
type DecodeError struct {
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

func decodeErrorf(path, format string, args ...any) *DecodeError {
	return &DecodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// EncodeError reports an in-memory record that violates an invariant
// required for a lossless persisted representation.
type EncodeError struct {
	Path   string
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("encode record: %s", e.Reason)
	}
	return fmt.Sprintf("encode %s: %s", e.Path, e.Reason)
}

func encodeErrorf(path, format string, args ...any) *EncodeError {
	return &EncodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
