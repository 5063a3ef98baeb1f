package tagged

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// FromPlain converts untyped JSON into a Value. Integral literals become
// integer numbers, object keys keep document order.
func FromPlain(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		if isIntegral(r.Raw) {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return Int(n)
			}
		}
		return Float(r.Num)
	}
	if r.IsArray() {
		raw := r.Array()
		items := make([]Value, 0, len(raw))
		for _, it := range raw {
			items = append(items, FromPlain(it))
		}
		return Array(items...)
	}
	if r.IsObject() {
		var fields []Field
		r.ForEach(func(key, item gjson.Result) bool {
			fields = append(fields, Field{Key: key.Str, Value: FromPlain(item)})
			return true
		})
		return Map(fields...)
	}
	return Null()
}

func isIntegral(raw string) bool {
	return raw != "" && !strings.ContainsAny(raw, ".eE")
}

// AppendPlainJSON appends v as untyped JSON. Kinds without a JSON shape are
// flattened: non-finite numbers become null, bytes become base64 strings,
// timestamps become epoch milliseconds and references become their path.
func (v Value) AppendPlainJSON(dst []byte) []byte {
	switch v.kind {
	case KindBoolean:
		return strconv.AppendBool(dst, v.b)
	case KindNumber:
		if !finite(v.num) {
			return append(dst, "null"...)
		}
		if v.integer {
			return strconv.AppendInt(dst, int64(v.num), 10)
		}
		return strconv.AppendFloat(dst, v.num, 'g', -1, 64)
	case KindString:
		return appendString(dst, v.str)
	case KindBytes:
		return appendString(dst, base64.StdEncoding.EncodeToString(v.raw))
	case KindArray:
		dst = append(dst, '[')
		for i, it := range v.items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = it.AppendPlainJSON(dst)
		}
		return append(dst, ']')
	case KindMap:
		dst = append(dst, '{')
		for i, f := range v.fields {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, f.Key)
			dst = append(dst, ':')
			dst = f.Value.AppendPlainJSON(dst)
		}
		return append(dst, '}')
	case KindTimestamp:
		ms := v.ts.Seconds*1000 + int64(v.ts.Nanos)/1_000_000
		return strconv.AppendInt(dst, ms, 10)
	case KindReference:
		return appendString(dst, v.str)
	case KindGeoPoint:
		dst = append(dst, `{"latitude":`...)
		dst = strconv.AppendFloat(dst, v.geo.Latitude, 'g', -1, 64)
		dst = append(dst, `,"longitude":`...)
		dst = strconv.AppendFloat(dst, v.geo.Longitude, 'g', -1, 64)
		return append(dst, '}')
	}
	return append(dst, "null"...)
}

// Plain returns the untyped JSON form of v.
func (v Value) Plain() []byte {
	return v.AppendPlainJSON(nil)
}
