package tagged

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

// Wire codes of the type-array encoding. Every value travels as
// [code] or [code, payload].
const (
	CodeNaN              = 0
	CodeNegativeInfinity = 1
	CodePositiveInfinity = 2
	CodeNull             = 3
	CodeDocumentID       = 4
	CodeTrue             = 5
	CodeFalse            = 6
	CodeDouble           = 7
	CodeString           = 8
	CodeEmptyString      = 9
	CodeArray            = 10
	CodeReference        = 11
	CodeGeoPoint         = 12
	CodeTimestamp        = 13
	CodeBlob             = 14
	CodeFieldValue       = 15
	CodeObject           = 16
	CodeInteger          = 17
	CodeNegativeZero     = 18
	CodeUnknown          = -999
)

// DocumentIDField is the field path a CodeDocumentID sentinel decodes to.
const DocumentIDField = "__name__"

func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(make([]byte, 0, 32))
}

// AppendJSON appends the type-array form of v to dst. Map fields keep their
// insertion order.
func (v Value) AppendJSON(dst []byte) ([]byte, error) {
	var err error
	switch v.kind {
	case KindNull:
		return appendCode(dst, CodeNull), nil
	case KindBoolean:
		if v.b {
			return appendCode(dst, CodeTrue), nil
		}
		return appendCode(dst, CodeFalse), nil
	case KindNumber:
		return appendNumber(dst, v), nil
	case KindString:
		if v.str == "" {
			return appendCode(dst, CodeEmptyString), nil
		}
		dst = appendOpen(dst, CodeString)
		dst = appendString(dst, v.str)
	case KindBytes:
		dst = appendOpen(dst, CodeBlob)
		dst = appendString(dst, base64.StdEncoding.EncodeToString(v.raw))
	case KindArray:
		dst = appendOpen(dst, CodeArray)
		if dst, err = appendItems(dst, v.items); err != nil {
			return nil, err
		}
	case KindMap:
		dst = appendOpen(dst, CodeObject)
		dst = append(dst, '{')
		for i, f := range v.fields {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, f.Key)
			dst = append(dst, ':')
			if dst, err = f.Value.AppendJSON(dst); err != nil {
				return nil, err
			}
		}
		dst = append(dst, '}')
	case KindTimestamp:
		dst = appendOpen(dst, CodeTimestamp)
		dst = append(dst, '[')
		dst = strconv.AppendInt(dst, v.ts.Seconds, 10)
		dst = append(dst, ',')
		dst = strconv.AppendInt(dst, int64(v.ts.Nanos), 10)
		dst = append(dst, ']')
	case KindReference:
		dst = appendOpen(dst, CodeReference)
		dst = appendString(dst, v.str)
	case KindGeoPoint:
		if !finite(v.geo.Latitude) || !finite(v.geo.Longitude) {
			return nil, fmt.Errorf("%w: geopoint coordinates must be finite", ErrMalformedValue)
		}
		dst = appendOpen(dst, CodeGeoPoint)
		dst = append(dst, '[')
		dst = strconv.AppendFloat(dst, v.geo.Latitude, 'g', -1, 64)
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, v.geo.Longitude, 'g', -1, 64)
		dst = append(dst, ']')
	case KindTransform:
		t := v.Transform()
		dst = appendOpen(dst, CodeFieldValue)
		dst = append(dst, '[')
		dst = appendString(dst, string(t.Op))
		switch t.Op {
		case OpIncrement:
			if len(t.Operands) != 1 || t.Operands[0].kind != KindNumber {
				return nil, fmt.Errorf("%w: increment needs one number", ErrMalformedValue)
			}
			dst = append(dst, ',')
			dst = strconv.AppendFloat(dst, t.Operands[0].num, 'g', -1, 64)
		case OpArrayUnion, OpArrayRemove:
			dst = append(dst, ',')
			if dst, err = appendItems(dst, t.Operands); err != nil {
				return nil, err
			}
		}
		dst = append(dst, ']')
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.kind)
	}
	return append(dst, ']'), nil
}

func appendCode(dst []byte, code int) []byte {
	dst = append(dst, '[')
	dst = strconv.AppendInt(dst, int64(code), 10)
	return append(dst, ']')
}

func appendOpen(dst []byte, code int) []byte {
	dst = append(dst, '[')
	dst = strconv.AppendInt(dst, int64(code), 10)
	return append(dst, ',')
}

func appendString(dst []byte, s string) []byte {
	quoted, _ := json.Marshal(s)
	return append(dst, quoted...)
}

func appendItems(dst []byte, items []Value) ([]byte, error) {
	var err error
	dst = append(dst, '[')
	for i, it := range items {
		if i > 0 {
			dst = append(dst, ',')
		}
		if dst, err = it.AppendJSON(dst); err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

func appendNumber(dst []byte, v Value) []byte {
	f := v.num
	switch {
	case math.IsNaN(f):
		return appendCode(dst, CodeNaN)
	case math.IsInf(f, -1):
		return appendCode(dst, CodeNegativeInfinity)
	case math.IsInf(f, 1):
		return appendCode(dst, CodePositiveInfinity)
	case f == 0 && math.Signbit(f):
		return appendCode(dst, CodeNegativeZero)
	case v.integer:
		dst = appendOpen(dst, CodeInteger)
		dst = strconv.AppendInt(dst, int64(f), 10)
	default:
		dst = appendOpen(dst, CodeDouble)
		dst = strconv.AppendFloat(dst, f, 'g', -1, 64)
	}
	return append(dst, ']')
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ParseJSON decodes one type-array value.
func ParseJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, fmt.Errorf("%w: invalid json", ErrMalformedValue)
	}
	return FromResult(gjson.ParseBytes(data))
}

// FromResult decodes a type-array value from an already parsed gjson node.
func FromResult(r gjson.Result) (Value, error) {
	if !r.IsArray() {
		return Value{}, fmt.Errorf("%w: expected type array, got %s", ErrMalformedValue, r.Type)
	}
	parts := r.Array()
	if len(parts) == 0 || parts[0].Type != gjson.Number {
		return Value{}, fmt.Errorf("%w: missing type code", ErrMalformedValue)
	}
	code := int(parts[0].Int())
	var payload gjson.Result
	if len(parts) > 1 {
		payload = parts[1]
	}

	switch code {
	case CodeNaN:
		return Float(math.NaN()), nil
	case CodeNegativeInfinity:
		return Float(math.Inf(-1)), nil
	case CodePositiveInfinity:
		return Float(math.Inf(1)), nil
	case CodeNull, CodeUnknown:
		return Null(), nil
	case CodeDocumentID:
		return String(DocumentIDField), nil
	case CodeTrue:
		return Bool(true), nil
	case CodeFalse:
		return Bool(false), nil
	case CodeNegativeZero:
		return Float(math.Copysign(0, -1)), nil
	case CodeInteger:
		if payload.Type != gjson.Number {
			return Value{}, malformed(code, payload)
		}
		return Int(payload.Int()), nil
	case CodeDouble:
		if payload.Type != gjson.Number {
			return Value{}, malformed(code, payload)
		}
		return Float(payload.Num), nil
	case CodeString:
		if payload.Type != gjson.String {
			return Value{}, malformed(code, payload)
		}
		return String(payload.Str), nil
	case CodeEmptyString:
		return String(""), nil
	case CodeArray:
		items, err := parseItems(code, payload)
		if err != nil {
			return Value{}, err
		}
		return Array(items...), nil
	case CodeObject:
		if !payload.IsObject() {
			return Value{}, malformed(code, payload)
		}
		var (
			fields []Field
			ferr   error
		)
		payload.ForEach(func(key, item gjson.Result) bool {
			var fv Value
			fv, ferr = FromResult(item)
			if ferr != nil {
				return false
			}
			fields = append(fields, Field{Key: key.Str, Value: fv})
			return true
		})
		if ferr != nil {
			return Value{}, ferr
		}
		return Map(fields...), nil
	case CodeReference:
		if payload.Type != gjson.String {
			return Value{}, malformed(code, payload)
		}
		return Reference(Ref{Path: payload.Str}), nil
	case CodeGeoPoint:
		pair := payload.Array()
		if !payload.IsArray() || len(pair) != 2 {
			return Value{}, malformed(code, payload)
		}
		return Geo(GeoPoint{Latitude: pair[0].Num, Longitude: pair[1].Num}), nil
	case CodeTimestamp:
		pair := payload.Array()
		if !payload.IsArray() || len(pair) != 2 {
			return Value{}, malformed(code, payload)
		}
		ts := Timestamp{Seconds: pair[0].Int(), Nanos: int32(pair[1].Int())}
		if pair[1].Int() < 0 || pair[1].Int() > maxNanos {
			return Value{}, fmt.Errorf("%w: timestamp nanos %d out of range", ErrMalformedValue, pair[1].Int())
		}
		return Time(ts), nil
	case CodeBlob:
		raw, err := base64.StdEncoding.DecodeString(payload.Str)
		if err != nil {
			return Value{}, fmt.Errorf("%w: blob: %v", ErrMalformedValue, err)
		}
		return Value{kind: KindBytes, raw: raw}, nil
	case CodeFieldValue:
		return parseTransform(payload)
	}
	return Value{}, fmt.Errorf("%w: type code %d", ErrUnsupportedType, code)
}

func parseItems(code int, payload gjson.Result) ([]Value, error) {
	if !payload.IsArray() {
		return nil, malformed(code, payload)
	}
	raw := payload.Array()
	items := make([]Value, 0, len(raw))
	for _, it := range raw {
		v, err := FromResult(it)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func parseTransform(payload gjson.Result) (Value, error) {
	parts := payload.Array()
	if !payload.IsArray() || len(parts) == 0 {
		return Value{}, malformed(CodeFieldValue, payload)
	}
	op := TransformOp(parts[0].Str)
	switch op {
	case OpServerTimestamp, OpDelete:
		return Transform(FieldTransform{Op: op}), nil
	case OpIncrement:
		if len(parts) < 2 || parts[1].Type != gjson.Number {
			return Value{}, malformed(CodeFieldValue, payload)
		}
		return Transform(FieldTransform{Op: op, Operands: []Value{Float(parts[1].Num)}}), nil
	case OpArrayUnion, OpArrayRemove:
		if len(parts) < 2 {
			return Value{}, malformed(CodeFieldValue, payload)
		}
		items, err := parseItems(CodeFieldValue, parts[1])
		if err != nil {
			return Value{}, err
		}
		return Transform(FieldTransform{Op: op, Operands: items}), nil
	}
	return Value{}, fmt.Errorf("%w: field value %q", ErrUnsupportedType, parts[0].Str)
}

func malformed(code int, payload gjson.Result) error {
	return fmt.Errorf("%w: code %d payload %s", ErrMalformedValue, code, payload.Raw)
}
