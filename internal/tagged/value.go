// Package tagged holds the closed value union that crosses the bridge
// boundary, and its two wire forms: the JSON type-array encoding spoken by
// the application layer and a CBOR encoding used for storage.
package tagged

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnsupportedType = errors.New("tagged: unsupported type")
	ErrMalformedValue  = errors.New("tagged: malformed value")
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindBytes
	KindArray
	KindMap
	KindTimestamp
	KindReference
	KindGeoPoint
	KindTransform
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindBytes:     "bytes",
	KindArray:     "array",
	KindMap:       "map",
	KindTimestamp: "timestamp",
	KindReference: "reference",
	KindGeoPoint:  "geopoint",
	KindTransform: "fieldvalue",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Timestamp is a point in time as seconds since the epoch plus a
// non-negative nanosecond offset.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

const maxNanos = 999_999_999

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t Timestamp) Validate() error {
	if t.Nanos < 0 || t.Nanos > maxNanos {
		return fmt.Errorf("%w: timestamp nanos %d out of range", ErrMalformedValue, t.Nanos)
	}
	return nil
}

type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Ref points at a document or database location inside one store instance.
type Ref struct {
	Store string
	Path  string
}

type Field struct {
	Key   string
	Value Value
}

type TransformOp string

const (
	OpServerTimestamp TransformOp = "timestamp"
	OpIncrement       TransformOp = "increment"
	OpDelete          TransformOp = "delete"
	OpArrayUnion      TransformOp = "array_union"
	OpArrayRemove     TransformOp = "array_remove"
)

// FieldTransform is a write-only sentinel asking the store to compute the
// field value server side. Increment carries one numeric operand, the array
// operations carry their elements.
type FieldTransform struct {
	Op       TransformOp
	Operands []Value
}

// Value is an immutable tagged value. The zero Value is Null.
type Value struct {
	kind      Kind
	b         bool
	num       float64
	integer   bool
	str       string
	store     string
	raw       []byte
	items     []Value
	fields    []Field
	ts        Timestamp
	geo       GeoPoint
	transform *FieldTransform
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

func Float(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int builds a number that is flagged as integral so it travels with the
// integer wire code. Magnitudes above 2^53 lose precision on the JSON side.
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i), integer: true} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: bytes.Clone(b)}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, items: items}
}

func Map(fields ...Field) Value {
	return Value{kind: KindMap, fields: fields}
}

func Time(ts Timestamp) Value { return Value{kind: KindTimestamp, ts: ts} }

func Reference(r Ref) Value {
	return Value{kind: KindReference, store: r.Store, str: r.Path}
}

func Geo(g GeoPoint) Value { return Value{kind: KindGeoPoint, geo: g} }

func Transform(t FieldTransform) Value {
	return Value{kind: KindTransform, transform: &t}
}

func F(key string, v Value) Field { return Field{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.b }
func (v Value) Float() float64 { return v.num }
func (v Value) Int() int64 { return int64(v.num) }
func (v Value) Text() string { return v.str }

// IsInteger reports whether a number was built from an integral source.
func (v Value) IsInteger() bool { return v.kind == KindNumber && v.integer }

func (v Value) Bytes() []byte { return v.raw }
func (v Value) Items() []Value { return v.items }
func (v Value) Fields() []Field { return v.fields }
func (v Value) Timestamp() Timestamp { return v.ts }
func (v Value) Ref() Ref { return Ref{Store: v.store, Path: v.str} }
func (v Value) GeoPoint() GeoPoint { return v.geo }
func (v Value) Len() int { return max(len(v.items), len(v.fields)) }
func (v Value) Transform() FieldTransform {
	if v.transform == nil {
		return FieldTransform{}
	}
	return *v.transform
}

// Get returns the value stored under key in a map value.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// WithStore returns a copy of a reference value bound to store. Other
// kinds are returned unchanged.
func (v Value) WithStore(store string) Value {
	if v.kind != KindReference {
		return v
	}
	v.store = store
	return v
}

func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		if v.integer {
			return fmt.Sprintf("%d", int64(v.num))
		}
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindReference:
		return fmt.Sprintf("ref(%s:%s)", v.store, v.str)
	default:
		return v.kind.String()
	}
}

// Equal compares two values structurally. NaN equals NaN and the sign of
// zero is significant so that wire round trips compare equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBoolean:
		return a.b == b.b
	case KindNumber:
		if math.IsNaN(a.num) || math.IsNaN(b.num) {
			return math.IsNaN(a.num) && math.IsNaN(b.num)
		}
		if a.integer != b.integer {
			return false
		}
		return a.num == b.num && math.Signbit(a.num) == math.Signbit(b.num)
	case KindString:
		return a.str == b.str
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindArray:
		return equalItems(a.items, b.items)
	case KindMap:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i := range a.fields {
			if a.fields[i].Key != b.fields[i].Key || !Equal(a.fields[i].Value, b.fields[i].Value) {
				return false
			}
		}
		return true
	case KindTimestamp:
		return a.ts == b.ts
	case KindReference:
		return a.store == b.store && a.str == b.str
	case KindGeoPoint:
		return a.geo == b.geo
	case KindTransform:
		at, bt := a.Transform(), b.Transform()
		return at.Op == bt.Op && equalItems(at.Operands, bt.Operands)
	}
	return false
}

func equalItems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
