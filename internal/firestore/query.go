package firestore

import (
	"errors"
	"fmt"
	"strings"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/codec"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

var ErrInvalidQuery = errors.New("firestore: invalid query")

type QueryType string

const (
	QueryCollection      QueryType = "collection"
	QueryCollectionGroup QueryType = "collectionGroup"
)

var operators = map[string]string{
	"EQUAL":                 "==",
	"NOT_EQUAL":             "!=",
	"GREATER_THAN":          ">",
	"GREATER_THAN_OR_EQUAL": ">=",
	"LESS_THAN":             "<",
	"LESS_THAN_OR_EQUAL":    "<=",
	"ARRAY_CONTAINS":        "array-contains",
	"ARRAY_CONTAINS_ANY":    "array-contains-any",
	"IN":                    "in",
	"NOT_IN":                "not-in",
}

type Filter struct {
	FieldPath gcfirestore.FieldPath
	Op        string
	Value     tagged.Value
}

type Order struct {
	FieldPath gcfirestore.FieldPath
	Direction gcfirestore.Direction
}

// QuerySpec is a collection or collection group query as the application
// layer describes it.
type QuerySpec struct {
	Path        string
	Type        QueryType
	Filters     []Filter
	Orders      []Order
	Limit       int
	LimitToLast int
	StartAt     []tagged.Value
	StartAfter  []tagged.Value
	EndAt       []tagged.Value
	EndBefore   []tagged.Value
}

func invalid(format string, args ...any) error {
	return nativeerr.Wrap(nativeerr.InvalidArgument,
		fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...)))
}

// ParseQuery reads a query descriptor:
//
//	{path, type, filters: [{fieldPath, operator, value}],
//	 orders: [{fieldPath, direction}], options: {limit, limitToLast, startAt, ...}}
//
// Filter and cursor values are type arrays.
func ParseQuery(q gjson.Result) (QuerySpec, error) {
	spec := QuerySpec{
		Path: strings.Trim(q.Get("path").String(), "/"),
		Type: QueryType(q.Get("type").String()),
	}
	if spec.Type == "" {
		spec.Type = QueryCollection
	}
	switch spec.Type {
	case QueryCollection:
		if err := codec.ValidatePath(spec.Path); err != nil {
			return QuerySpec{}, invalid("%v", err)
		}
		if len(strings.Split(spec.Path, "/"))%2 != 1 {
			return QuerySpec{}, invalid("%q is not a collection path", spec.Path)
		}
	case QueryCollectionGroup:
		if spec.Path == "" || strings.Contains(spec.Path, "/") {
			return QuerySpec{}, invalid("%q is not a collection id", spec.Path)
		}
	default:
		return QuerySpec{}, invalid("unknown query type %q", spec.Type)
	}

	for _, f := range q.Get("filters").Array() {
		fp, err := parseFieldPath(f.Get("fieldPath"))
		if err != nil {
			return QuerySpec{}, err
		}
		op, ok := operators[f.Get("operator").String()]
		if !ok {
			return QuerySpec{}, invalid("unknown operator %q", f.Get("operator").String())
		}
		v, err := tagged.FromResult(f.Get("value"))
		if err != nil {
			return QuerySpec{}, err
		}
		spec.Filters = append(spec.Filters, Filter{FieldPath: fp, Op: op, Value: v})
	}

	for _, o := range q.Get("orders").Array() {
		fp, err := parseFieldPath(o.Get("fieldPath"))
		if err != nil {
			return QuerySpec{}, err
		}
		dir := gcfirestore.Asc
		switch d := o.Get("direction").String(); d {
		case "", "ASCENDING", "asc":
		case "DESCENDING", "desc":
			dir = gcfirestore.Desc
		default:
			return QuerySpec{}, invalid("unknown direction %q", d)
		}
		spec.Orders = append(spec.Orders, Order{FieldPath: fp, Direction: dir})
	}

	opts := q.Get("options")
	spec.Limit = int(opts.Get("limit").Int())
	spec.LimitToLast = int(opts.Get("limitToLast").Int())
	if spec.Limit < 0 || spec.LimitToLast < 0 {
		return QuerySpec{}, invalid("negative limit")
	}
	if spec.Limit > 0 && spec.LimitToLast > 0 {
		return QuerySpec{}, invalid("limit and limitToLast are exclusive")
	}
	if spec.LimitToLast > 0 && len(spec.Orders) == 0 {
		return QuerySpec{}, invalid("limitToLast requires an order")
	}

	var err error
	for name, dst := range map[string]*[]tagged.Value{
		"startAt":    &spec.StartAt,
		"startAfter": &spec.StartAfter,
		"endAt":      &spec.EndAt,
		"endBefore":  &spec.EndBefore,
	} {
		if *dst, err = parseCursor(opts.Get(name)); err != nil {
			return QuerySpec{}, err
		}
	}
	return spec, nil
}

func parseFieldPath(r gjson.Result) (gcfirestore.FieldPath, error) {
	switch {
	case r.Type == gjson.String:
		return splitFieldPath(r.String())
	case r.Get("type").String() == "string":
		return splitFieldPath(r.Get("string").String())
	case r.Get("type").String() == "fieldpath", r.IsArray():
		elems := r.Get("elements")
		if r.IsArray() {
			elems = r
		}
		var fp gcfirestore.FieldPath
		for _, e := range elems.Array() {
			if e.String() == "" {
				return nil, invalid("empty field path segment")
			}
			fp = append(fp, e.String())
		}
		if len(fp) == 0 {
			return nil, invalid("empty field path")
		}
		return fp, nil
	}
	return nil, invalid("malformed field path %s", r.Raw)
}

func splitFieldPath(s string) (gcfirestore.FieldPath, error) {
	if s == tagged.DocumentIDField {
		return gcfirestore.FieldPath{gcfirestore.DocumentID}, nil
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, invalid("malformed field path %q", s)
		}
	}
	return parts, nil
}

func parseCursor(r gjson.Result) ([]tagged.Value, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	if !r.IsArray() {
		return nil, invalid("cursor must be a list of values")
	}
	var out []tagged.Value
	for _, item := range r.Array() {
		v, err := tagged.FromResult(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Build turns the descriptor into a native query. Filter and cursor values go
// through c so references resolve against the right client.
func (s QuerySpec) Build(client *gcfirestore.Client, c *codec.Codec) (gcfirestore.Query, error) {
	var q gcfirestore.Query
	if s.Type == QueryCollectionGroup {
		q = client.CollectionGroup(s.Path).Query
	} else {
		q = client.Collection(s.Path).Query
	}

	for _, f := range s.Filters {
		v, err := c.Decode(f.Value)
		if err != nil {
			return q, err
		}
		q = q.WherePath(f.FieldPath, f.Op, v)
	}
	for _, o := range s.Orders {
		q = q.OrderByPath(o.FieldPath, o.Direction)
	}
	if s.Limit > 0 {
		q = q.Limit(s.Limit)
	}
	if s.LimitToLast > 0 {
		q = q.LimitToLast(s.LimitToLast)
	}

	cursors := []struct {
		values []tagged.Value
		apply  func(gcfirestore.Query, ...any) gcfirestore.Query
	}{
		{s.StartAt, gcfirestore.Query.StartAt},
		{s.StartAfter, gcfirestore.Query.StartAfter},
		{s.EndAt, gcfirestore.Query.EndAt},
		{s.EndBefore, gcfirestore.Query.EndBefore},
	}
	for _, cur := range cursors {
		if len(cur.values) == 0 {
			continue
		}
		args := make([]any, 0, len(cur.values))
		for _, v := range cur.values {
			native, err := c.Decode(v)
			if err != nil {
				return q, err
			}
			args = append(args, native)
		}
		q = cur.apply(q, args...)
	}
	return q, nil
}

// Key identifies the query for caching.
func (s QuerySpec) Key() string {
	var b strings.Builder
	b.WriteString(string(s.Type))
	b.WriteByte(':')
	b.WriteString(s.Path)
	for _, f := range s.Filters {
		fmt.Fprintf(&b, "|w:%s%s%s", strings.Join(f.FieldPath, "."), f.Op, mustJSON(f.Value))
	}
	for _, o := range s.Orders {
		fmt.Fprintf(&b, "|o:%s:%d", strings.Join(o.FieldPath, "."), o.Direction)
	}
	fmt.Fprintf(&b, "|l:%d:%d", s.Limit, s.LimitToLast)
	for _, cur := range [][]tagged.Value{s.StartAt, s.StartAfter, s.EndAt, s.EndBefore} {
		b.WriteString("|c:")
		for _, v := range cur {
			b.Write(mustJSON(v))
		}
	}
	return b.String()
}

func mustJSON(v tagged.Value) []byte {
	raw, err := v.MarshalJSON()
	if err != nil {
		return []byte("?")
	}
	return raw
}
