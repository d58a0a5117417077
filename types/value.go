package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueKind identifies the runtime type of a QueryValue
type ValueKind string

const (
	KindNull     ValueKind = "null"
	KindString   ValueKind = "string"
	KindNumber   ValueKind = "number"
	KindBool     ValueKind = "boolean"
	KindDateTime ValueKind = "datetime"
	KindGuid     ValueKind = "guid"
)

// QueryValue is a tagged value used uniformly for literals and result cells,
// so the evaluator and planner never depend on Go's dynamic typing.
type QueryValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
	Guid uuid.UUID
}

// NullValue returns the null QueryValue
func NullValue() QueryValue {
	return QueryValue{Kind: KindNull}
}

// StringValue wraps a string
func StringValue(s string) QueryValue {
	return QueryValue{Kind: KindString, Str: s}
}

// NumberValue wraps a number
func NumberValue(n float64) QueryValue {
	return QueryValue{Kind: KindNumber, Num: n}
}

// BoolValue wraps a boolean
func BoolValue(b bool) QueryValue {
	return QueryValue{Kind: KindBool, Bool: b}
}

// TimeValue wraps a date-time
func TimeValue(t time.Time) QueryValue {
	return QueryValue{Kind: KindDateTime, Time: t}
}

// GuidValue wraps a unique identifier
func GuidValue(id uuid.UUID) QueryValue {
	return QueryValue{Kind: KindGuid, Guid: id}
}

// IsNull reports whether the value is null
func (v QueryValue) IsNull() bool {
	return v.Kind == KindNull || v.Kind == ""
}

// String renders the value for display and native-query serialization
func (v QueryValue) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindDateTime:
		return v.Time.Format(time.RFC3339)
	case KindGuid:
		return v.Guid.String()
	default:
		return ""
	}
}

// Equal reports full-value equality, used for DISTINCT de-duplication
func (v QueryValue) Equal(other QueryValue) bool {
	if v.IsNull() || other.IsNull() {
		return v.IsNull() && other.IsNull()
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp == 0
}

// Compare orders two values. Numeric and string coercions are attempted in
// the direction of the left operand's kind; values that cannot be coerced
// produce an error the caller classifies as a type mismatch.
func (v QueryValue) Compare(other QueryValue) (int, error) {
	if v.IsNull() || other.IsNull() {
		return 0, fmt.Errorf("cannot compare null values")
	}

	switch v.Kind {
	case KindNumber:
		n, err := other.AsNumber()
		if err != nil {
			return 0, err
		}
		return compareFloat(v.Num, n), nil
	case KindString:
		if other.Kind == KindNumber {
			n, err := v.AsNumber()
			if err != nil {
				return 0, err
			}
			return compareFloat(n, other.Num), nil
		}
		return strings.Compare(v.Str, other.asString()), nil
	case KindBool:
		b, err := other.AsBool()
		if err != nil {
			return 0, err
		}
		if v.Bool == b {
			return 0, nil
		}
		if !v.Bool {
			return -1, nil
		}
		return 1, nil
	case KindDateTime:
		t, err := other.AsTime()
		if err != nil {
			return 0, err
		}
		if v.Time.Equal(t) {
			return 0, nil
		}
		if v.Time.Before(t) {
			return -1, nil
		}
		return 1, nil
	case KindGuid:
		g, err := other.AsGuid()
		if err != nil {
			return 0, err
		}
		return strings.Compare(v.Guid.String(), g.String()), nil
	}
	return 0, fmt.Errorf("unsupported value kind %q", v.Kind)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v QueryValue) AsNumber() (float64, error) {
	switch v.Kind {
	case KindNumber:
		return v.Num, nil
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", v.Str)
		}
		return n, nil
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert %s to number", v.Kind)
}

func (v QueryValue) asString() string {
	return v.String()
}

func (v QueryValue) AsBool() (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindString:
		b, err := strconv.ParseBool(v.Str)
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to boolean", v.Str)
		}
		return b, nil
	case KindNumber:
		return v.Num != 0, nil
	}
	return false, fmt.Errorf("cannot convert %s to boolean", v.Kind)
}

func (v QueryValue) AsTime() (time.Time, error) {
	switch v.Kind {
	case KindDateTime:
		return v.Time, nil
	case KindString:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot convert %q to datetime", v.Str)
	}
	return time.Time{}, fmt.Errorf("cannot convert %s to datetime", v.Kind)
}

func (v QueryValue) AsGuid() (uuid.UUID, error) {
	switch v.Kind {
	case KindGuid:
		return v.Guid, nil
	case KindString:
		id, err := uuid.Parse(v.Str)
		if err != nil {
			return uuid.Nil, fmt.Errorf("cannot convert %q to guid", v.Str)
		}
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("cannot convert %s to guid", v.Kind)
}
