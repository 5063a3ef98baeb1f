// Package codec converts between native Go values, as produced and consumed
// by the Firebase SDKs, and tagged values.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

// Resolver turns a document path into a live document reference.
// *firestore.Client satisfies it.
type Resolver interface {
	Doc(path string) *firestore.DocumentRef
}

// Codec is bound to one store instance so references it produces carry the
// right owner. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	store    string
	resolver Resolver
}

func New(store string, resolver Resolver) *Codec {
	return &Codec{store: store, resolver: resolver}
}

var plain = &Codec{}

// Encode converts a native value with the unbound codec.
func Encode(native any) (tagged.Value, error) { return plain.Encode(native) }

// Decode converts a tagged value with the unbound codec.
func Decode(v tagged.Value) (any, error) { return plain.Decode(v) }

func (c *Codec) Store() string { return c.store }

func (c *Codec) Encode(native any) (tagged.Value, error) {
	switch n := native.(type) {
	case nil:
		return tagged.Null(), nil
	case tagged.Value:
		return n, nil
	case bool:
		return tagged.Bool(n), nil
	case int:
		return tagged.Int(int64(n)), nil
	case int8:
		return tagged.Int(int64(n)), nil
	case int16:
		return tagged.Int(int64(n)), nil
	case int32:
		return tagged.Int(int64(n)), nil
	case int64:
		return tagged.Int(n), nil
	case uint8:
		return tagged.Int(int64(n)), nil
	case uint16:
		return tagged.Int(int64(n)), nil
	case uint32:
		return tagged.Int(int64(n)), nil
	case uint:
		return encodeUnsigned(uint64(n)), nil
	case uint64:
		return encodeUnsigned(n), nil
	case float32:
		return tagged.Float(float64(n)), nil
	case float64:
		return tagged.Float(n), nil
	case string:
		return tagged.String(n), nil
	case []byte:
		return tagged.Bytes(n), nil
	case time.Time:
		return tagged.Time(tagged.TimestampOf(n)), nil
	case *time.Time:
		if n == nil {
			return tagged.Null(), nil
		}
		return tagged.Time(tagged.TimestampOf(*n)), nil
	case tagged.Timestamp:
		if err := n.Validate(); err != nil {
			return tagged.Value{}, err
		}
		return tagged.Time(n), nil
	case tagged.GeoPoint:
		return tagged.Geo(n), nil
	case *latlng.LatLng:
		if n == nil {
			return tagged.Null(), nil
		}
		return tagged.Geo(tagged.GeoPoint{Latitude: n.GetLatitude(), Longitude: n.GetLongitude()}), nil
	case tagged.Ref:
		if n.Store == "" {
			n.Store = c.store
		}
		if err := ValidatePath(n.Path); err != nil {
			return tagged.Value{}, err
		}
		return tagged.Reference(n), nil
	case *firestore.DocumentRef:
		if n == nil {
			return tagged.Null(), nil
		}
		return tagged.Reference(tagged.Ref{Store: c.store, Path: RelativePath(n.Path)}), nil
	case tagged.FieldTransform:
		return tagged.Transform(n), nil
	case []tagged.Field:
		return tagged.Map(n...), nil
	case []any:
		items := make([]tagged.Value, 0, len(n))
		for i, it := range n {
			v, err := c.Encode(it)
			if err != nil {
				return tagged.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, v)
		}
		return tagged.Array(items...), nil
	case map[string]any:
		return c.encodeMap(n)
	}
	return c.encodeReflect(native)
}

func encodeUnsigned(n uint64) tagged.Value {
	if n > math.MaxInt64 {
		return tagged.Float(float64(n))
	}
	return tagged.Int(int64(n))
}

// encodeMap sorts keys: SDK maps are unordered and encoding must be
// deterministic.
func (c *Codec) encodeMap(m map[string]any) (tagged.Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]tagged.Field, 0, len(keys))
	for _, k := range keys {
		v, err := c.Encode(m[k])
		if err != nil {
			return tagged.Value{}, fmt.Errorf("%s: %w", k, err)
		}
		fields = append(fields, tagged.Field{Key: k, Value: v})
	}
	return tagged.Map(fields...), nil
}

// encodeReflect covers typed slices and string-keyed maps such as
// []string or map[string]int that SDK callers hand over.
func (c *Codec) encodeReflect(native any) (tagged.Value, error) {
	rv := reflect.ValueOf(native)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return tagged.Null(), nil
		}
		return c.Encode(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return c.Encode(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return c.encodeMap(m)
	}
	return tagged.Value{}, fmt.Errorf("%w: %T", tagged.ErrUnsupportedType, native)
}

// Decode converts a tagged value into the native form the Firestore SDK
// accepts. References become *firestore.DocumentRef when the codec has a
// resolver and tagged.Ref otherwise.
func (c *Codec) Decode(v tagged.Value) (any, error) {
	switch v.Kind() {
	case tagged.KindNull:
		return nil, nil
	case tagged.KindBoolean:
		return v.Bool(), nil
	case tagged.KindNumber:
		if v.IsInteger() {
			return v.Int(), nil
		}
		return v.Float(), nil
	case tagged.KindString:
		return v.Text(), nil
	case tagged.KindBytes:
		return v.Bytes(), nil
	case tagged.KindArray:
		out := make([]any, 0, v.Len())
		for i, it := range v.Items() {
			n, err := c.Decode(it)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, n)
		}
		return out, nil
	case tagged.KindMap:
		out := make(map[string]any, v.Len())
		for _, f := range v.Fields() {
			n, err := c.Decode(f.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			out[f.Key] = n
		}
		return out, nil
	case tagged.KindTimestamp:
		ts := v.Timestamp()
		if err := ts.Validate(); err != nil {
			return nil, err
		}
		return ts.Time(), nil
	case tagged.KindGeoPoint:
		g := v.GeoPoint()
		return &latlng.LatLng{Latitude: g.Latitude, Longitude: g.Longitude}, nil
	case tagged.KindReference:
		return c.decodeRef(v.Ref())
	case tagged.KindTransform:
		return c.decodeTransform(v.Transform())
	}
	return nil, fmt.Errorf("%w: %s", tagged.ErrUnsupportedType, v.Kind())
}

func (c *Codec) decodeRef(r tagged.Ref) (any, error) {
	if r.Store == "" {
		r.Store = c.store
	}
	if c.resolver == nil {
		if err := ValidatePath(r.Path); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err := ValidateDocumentPath(r.Path); err != nil {
		return nil, err
	}
	doc := c.resolver.Doc(r.Path)
	if doc == nil {
		return nil, fmt.Errorf("%w: reference %q", tagged.ErrMalformedValue, r.Path)
	}
	return doc, nil
}

func (c *Codec) decodeTransform(t tagged.FieldTransform) (any, error) {
	switch t.Op {
	case tagged.OpServerTimestamp:
		return firestore.ServerTimestamp, nil
	case tagged.OpDelete:
		return firestore.Delete, nil
	case tagged.OpIncrement:
		if len(t.Operands) != 1 || t.Operands[0].Kind() != tagged.KindNumber {
			return nil, fmt.Errorf("%w: increment needs one number", tagged.ErrMalformedValue)
		}
		n := t.Operands[0]
		if n.IsInteger() {
			return firestore.Increment(n.Int()), nil
		}
		return firestore.Increment(n.Float()), nil
	case tagged.OpArrayUnion, tagged.OpArrayRemove:
		elems := make([]any, 0, len(t.Operands))
		for _, op := range t.Operands {
			n, err := c.Decode(op)
			if err != nil {
				return nil, err
			}
			elems = append(elems, n)
		}
		if t.Op == tagged.OpArrayUnion {
			return firestore.ArrayUnion(elems...), nil
		}
		return firestore.ArrayRemove(elems...), nil
	}
	return nil, fmt.Errorf("%w: field value %q", tagged.ErrUnsupportedType, t.Op)
}

// ValidatePath checks a slash separated path: no empty segments and no
// leading or trailing slash.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", tagged.ErrMalformedValue)
	}
	for seg := range strings.SplitSeq(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: path %q has an empty segment", tagged.ErrMalformedValue, path)
		}
	}
	return nil
}

// ValidateDocumentPath additionally requires an even number of segments,
// alternating collection and document ids.
func ValidateDocumentPath(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if strings.Count(path, "/")%2 != 1 {
		return fmt.Errorf("%w: %q is not a document path", tagged.ErrMalformedValue, path)
	}
	return nil
}

// RelativePath strips the "projects/p/databases/d/documents/" prefix the SDK
// puts on resource names.
func RelativePath(full string) string {
	if _, rest, ok := strings.Cut(full, "/documents/"); ok {
		return rest
	}
	return full
}
