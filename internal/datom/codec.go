package datom

import (
	"fmt"

	"github.com/google/uuid"
)

// ToSQL maps a value to its SQLite representation and storage type tag.
// Booleans become 0/1 integers, instants their microsecond count, UUIDs
// a 16-byte blob, keywords their printed form. Refs and longs pass
// through as integers and doubles as floats; the shared tag 5 is
// disambiguated on read by the column's storage class.
func ToSQL(v Value) (any, int, error) {
	switch val := v.(type) {
	case Ref:
		return int64(val), TagRef, nil
	case Boolean:
		if val {
			return int64(1), TagBoolean, nil
		}
		return int64(0), TagBoolean, nil
	case Instant:
		return int64(val), TagInstant, nil
	case Long:
		return int64(val), TagLong, nil
	case Double:
		return float64(val), TagDouble, nil
	case String:
		return string(val), TagString, nil
	case UUID:
		b := make([]byte, 16)
		copy(b, val[:])
		return b, TagUUID, nil
	case Keyword:
		return val.String(), TagKeyword, nil
	default:
		return nil, 0, fmt.Errorf("unknown value type: %T", v)
	}
}

// FromSQL reconstructs a value from the SQLite representation and tag.
// raw carries whatever database/sql produced for the column: int64,
// float64, string, or []byte.
func FromSQL(raw any, tag int) (Value, error) {
	switch tag {
	case TagRef:
		n, err := asInt64(raw, tag)
		if err != nil {
			return nil, err
		}
		return Ref(n), nil

	case TagBoolean:
		n, err := asInt64(raw, tag)
		if err != nil {
			return nil, err
		}
		switch n {
		case 0:
			return Boolean(false), nil
		case 1:
			return Boolean(true), nil
		default:
			return nil, fmt.Errorf("value tag %d: boolean out of range: %d", tag, n)
		}

	case TagInstant:
		n, err := asInt64(raw, tag)
		if err != nil {
			return nil, err
		}
		return Instant(n), nil

	case TagLong: // == TagDouble
		switch n := raw.(type) {
		case int64:
			return Long(n), nil
		case float64:
			return Double(n), nil
		default:
			return nil, fmt.Errorf("value tag %d: unexpected storage class %T", tag, raw)
		}

	case TagString:
		s, err := asString(raw, tag)
		if err != nil {
			return nil, err
		}
		return String(s), nil

	case TagUUID:
		b, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("value tag %d: unexpected storage class %T", tag, raw)
		}
		u, err := uuid.FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("value tag %d: %w", tag, err)
		}
		return UUID(u), nil

	case TagKeyword:
		s, err := asString(raw, tag)
		if err != nil {
			return nil, err
		}
		kw, err := ParseKeyword(s)
		if err != nil {
			return nil, fmt.Errorf("value tag %d: %w", tag, err)
		}
		return kw, nil

	default:
		return nil, fmt.Errorf("unknown value type tag: %d", tag)
	}
}

func asInt64(raw any, tag int) (int64, error) {
	n, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("value tag %d: unexpected storage class %T", tag, raw)
	}
	return n, nil
}

func asString(raw any, tag int) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		// database/sql may hand TEXT back as []byte depending on scan type.
		return string(s), nil
	default:
		return "", fmt.Errorf("value tag %d: unexpected storage class %T", tag, raw)
	}
}
