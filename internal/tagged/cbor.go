package tagged

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// The CBOR form mirrors the type-array layout: [code, payload]. Maps travel
// as arrays of [key, value] pairs because deterministic CBOR sorts map keys
// and field order is significant here. Bytes travel as byte strings.

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tagged: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tagged: CBOR decoder initialization failed: " + err.Error())
	}
}

func (v Value) MarshalCBOR() ([]byte, error) {
	node, err := v.cborNode()
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(node)
}

func (v Value) cborNode() ([]any, error) {
	switch v.kind {
	case KindNull:
		return []any{CodeNull}, nil
	case KindBoolean:
		if v.b {
			return []any{CodeTrue}, nil
		}
		return []any{CodeFalse}, nil
	case KindNumber:
		switch {
		case math.IsNaN(v.num):
			return []any{CodeNaN}, nil
		case math.IsInf(v.num, -1):
			return []any{CodeNegativeInfinity}, nil
		case math.IsInf(v.num, 1):
			return []any{CodePositiveInfinity}, nil
		case v.num == 0 && math.Signbit(v.num):
			return []any{CodeNegativeZero}, nil
		case v.integer:
			return []any{CodeInteger, int64(v.num)}, nil
		}
		return []any{CodeDouble, v.num}, nil
	case KindString:
		return []any{CodeString, v.str}, nil
	case KindBytes:
		return []any{CodeBlob, v.raw}, nil
	case KindArray:
		items, err := cborItems(v.items)
		if err != nil {
			return nil, err
		}
		return []any{CodeArray, items}, nil
	case KindMap:
		pairs := make([]any, 0, len(v.fields))
		for _, f := range v.fields {
			node, err := f.Value.cborNode()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, []any{f.Key, node})
		}
		return []any{CodeObject, pairs}, nil
	case KindTimestamp:
		return []any{CodeTimestamp, []any{v.ts.Seconds, v.ts.Nanos}}, nil
	case KindReference:
		return []any{CodeReference, []any{v.store, v.str}}, nil
	case KindGeoPoint:
		return []any{CodeGeoPoint, []any{v.geo.Latitude, v.geo.Longitude}}, nil
	case KindTransform:
		t := v.Transform()
		items, err := cborItems(t.Operands)
		if err != nil {
			return nil, err
		}
		return []any{CodeFieldValue, []any{string(t.Op), items}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.kind)
}

func cborItems(values []Value) ([]any, error) {
	items := make([]any, 0, len(values))
	for _, it := range values {
		node, err := it.cborNode()
		if err != nil {
			return nil, err
		}
		items = append(items, node)
	}
	return items, nil
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	out, err := parseCBOR(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func parseCBOR(data []byte) (Value, error) {
	var parts []cbor.RawMessage
	if err := cborDec.Unmarshal(data, &parts); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	if len(parts) == 0 {
		return Value{}, fmt.Errorf("%w: missing type code", ErrMalformedValue)
	}
	var code int
	if err := cborDec.Unmarshal(parts[0], &code); err != nil {
		return Value{}, fmt.Errorf("%w: type code: %v", ErrMalformedValue, err)
	}
	var payload cbor.RawMessage
	if len(parts) > 1 {
		payload = parts[1]
	}
	into := func(dst any) error {
		if payload == nil {
			return fmt.Errorf("%w: code %d missing payload", ErrMalformedValue, code)
		}
		if err := cborDec.Unmarshal(payload, dst); err != nil {
			return fmt.Errorf("%w: code %d: %v", ErrMalformedValue, code, err)
		}
		return nil
	}

	switch code {
	case CodeNaN:
		return Float(math.NaN()), nil
	case CodeNegativeInfinity:
		return Float(math.Inf(-1)), nil
	case CodePositiveInfinity:
		return Float(math.Inf(1)), nil
	case CodeNull:
		return Null(), nil
	case CodeTrue:
		return Bool(true), nil
	case CodeFalse:
		return Bool(false), nil
	case CodeNegativeZero:
		return Float(math.Copysign(0, -1)), nil
	case CodeInteger:
		var n int64
		if err := into(&n); err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case CodeDouble:
		var f float64
		if err := into(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case CodeString:
		var s string
		if err := into(&s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	case CodeBlob:
		var b []byte
		if err := into(&b); err != nil {
			return Value{}, err
		}
		return Value{kind: KindBytes, raw: b}, nil
	case CodeArray:
		var raw []cbor.RawMessage
		if err := into(&raw); err != nil {
			return Value{}, err
		}
		items, err := parseCBORItems(raw)
		if err != nil {
			return Value{}, err
		}
		return Array(items...), nil
	case CodeObject:
		var pairs []struct {
			_     struct{} `cbor:",toarray"`
			Key   string
			Value cbor.RawMessage
		}
		if err := into(&pairs); err != nil {
			return Value{}, err
		}
		fields := make([]Field, 0, len(pairs))
		for _, p := range pairs {
			fv, err := parseCBOR(p.Value)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: p.Key, Value: fv})
		}
		return Map(fields...), nil
	case CodeTimestamp:
		var ts struct {
			_       struct{} `cbor:",toarray"`
			Seconds int64
			Nanos   int64
		}
		if err := into(&ts); err != nil {
			return Value{}, err
		}
		if ts.Nanos < 0 || ts.Nanos > maxNanos {
			return Value{}, fmt.Errorf("%w: timestamp nanos %d out of range", ErrMalformedValue, ts.Nanos)
		}
		return Time(Timestamp{Seconds: ts.Seconds, Nanos: int32(ts.Nanos)}), nil
	case CodeReference:
		var ref struct {
			_     struct{} `cbor:",toarray"`
			Store string
			Path  string
		}
		if err := into(&ref); err != nil {
			return Value{}, err
		}
		return Reference(Ref{Store: ref.Store, Path: ref.Path}), nil
	case CodeGeoPoint:
		var g struct {
			_         struct{} `cbor:",toarray"`
			Latitude  float64
			Longitude float64
		}
		if err := into(&g); err != nil {
			return Value{}, err
		}
		return Geo(GeoPoint{Latitude: g.Latitude, Longitude: g.Longitude}), nil
	case CodeFieldValue:
		var t struct {
			_        struct{} `cbor:",toarray"`
			Op       string
			Operands []cbor.RawMessage
		}
		if err := into(&t); err != nil {
			return Value{}, err
		}
		operands, err := parseCBORItems(t.Operands)
		if err != nil {
			return Value{}, err
		}
		return Transform(FieldTransform{Op: TransformOp(t.Op), Operands: operands}), nil
	}
	return Value{}, fmt.Errorf("%w: type code %d", ErrUnsupportedType, code)
}

func parseCBORItems(raw []cbor.RawMessage) ([]Value, error) {
	items := make([]Value, 0, len(raw))
	for _, r := range raw {
		v, err := parseCBOR(r)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}
