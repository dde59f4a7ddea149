package records

import (
	"encoding/json"
	"fmt"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB-JSON rendering of items: the {"attr": {"S": "value"}, ...}
// wire form, covering the closed tag set the record shape uses
// (S, SS, M, L, NULL). Unknown tags are an error, never skipped.
//
// This is how the bolt backend persists items and how test fixtures are
// written. Output is deterministic (encoding/json sorts map keys), so
// stored bytes are stable across encodes of the same item.

// MarshalItem renders an item as DynamoDB JSON.
func MarshalItem(item Item) ([]byte, error) {
	out := make(map[string]any, len(item))
	for name, av := range item {
		v, err := marshalAttr(name, av)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return json.Marshal(out)
}

// UnmarshalItem parses DynamoDB JSON back into an item.
func UnmarshalItem(data []byte) (Item, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("item is not a JSON object: %w", err)
	}
	item := make(Item, len(raw))
	for name, msg := range raw {
		av, err := unmarshalAttr(name, msg)
		if err != nil {
			return nil, err
		}
		item[name] = av
	}
	return item, nil
}

func marshalAttr(path string, av ddbtypes.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return map[string]any{"S": v.Value}, nil
	case *ddbtypes.AttributeValueMemberSS:
		return map[string]any{"SS": v.Value}, nil
	case *ddbtypes.AttributeValueMemberNULL:
		return map[string]any{"NULL": v.Value}, nil
	case *ddbtypes.AttributeValueMemberM:
		inner := make(map[string]any, len(v.Value))
		for name, member := range v.Value {
			m, err := marshalAttr(path+"."+name, member)
			if err != nil {
				return nil, err
			}
			inner[name] = m
		}
		return map[string]any{"M": inner}, nil
	case *ddbtypes.AttributeValueMemberL:
		inner := make([]any, 0, len(v.Value))
		for i, member := range v.Value {
			m, err := marshalAttr(fmt.Sprintf("%s[%d]", path, i), member)
			if err != nil {
				return nil, err
			}
			inner = append(inner, m)
		}
		return map[string]any{"L": inner}, nil
	default:
		return nil, fmt.Errorf("%s: unsupported attribute type %T", path, av)
	}
}

func unmarshalAttr(path string, msg json.RawMessage) (ddbtypes.AttributeValue, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(msg, &tagged); err != nil {
		return nil, fmt.Errorf("%s: attribute is not a tagged object: %w", path, err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("%s: attribute must carry exactly one type tag, got %d", path, len(tagged))
	}

	for tag, body := range tagged {
		switch tag {
		case "S":
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, fmt.Errorf("%s: invalid S value: %w", path, err)
			}
			return &ddbtypes.AttributeValueMemberS{Value: s}, nil
		case "SS":
			var ss []string
			if err := json.Unmarshal(body, &ss); err != nil {
				return nil, fmt.Errorf("%s: invalid SS value: %w", path, err)
			}
			return &ddbtypes.AttributeValueMemberSS{Value: ss}, nil
		case "NULL":
			var b bool
			if err := json.Unmarshal(body, &b); err != nil {
				return nil, fmt.Errorf("%s: invalid NULL value: %w", path, err)
			}
			return &ddbtypes.AttributeValueMemberNULL{Value: b}, nil
		case "M":
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(body, &inner); err != nil {
				return nil, fmt.Errorf("%s: invalid M value: %w", path, err)
			}
			members := make(map[string]ddbtypes.AttributeValue, len(inner))
			for name, member := range inner {
				av, err := unmarshalAttr(path+"."+name, member)
				if err != nil {
					return nil, err
				}
				members[name] = av
			}
			return &ddbtypes.AttributeValueMemberM{Value: members}, nil
		case "L":
			var inner []json.RawMessage
			if err := json.Unmarshal(body, &inner); err != nil {
				return nil, fmt.Errorf("%s: invalid L value: %w", path, err)
			}
			members := make([]ddbtypes.AttributeValue, 0, len(inner))
			for i, member := range inner {
				av, err := unmarshalAttr(fmt.Sprintf("%s[%d]", path, i), member)
				if err != nil {
					return nil, err
				}
				members = append(members, av)
			}
			return &ddbtypes.AttributeValueMemberL{Value: members}, nil
		default:
			return nil, fmt.Errorf("%s: unknown attribute type tag %q", path, tag)
		}
	}
	// unreachable: the single-tag check above guarantees one iteration
	return nil, fmt.Errorf("%s: empty attribute", path)
}
