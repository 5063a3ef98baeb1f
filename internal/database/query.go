package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/db"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
)

var ErrInvalidQuery = errors.New("database: invalid query")

type Order string

const (
	OrderNone     Order = ""
	OrderKey      Order = "orderByKey"
	OrderValue    Order = "orderByValue"
	OrderChild    Order = "orderByChild"
	OrderPriority Order = "orderByPriority"
)

// Bound is an optional range value. Set distinguishes a null bound from no
// bound at all.
type Bound struct {
	Set   bool
	Value any
}

// QuerySpec is a location plus the modifiers applied to it, in the shape
// the application layer sends:
//
//	[{type: "orderBy", name: "orderByChild", key: "age"},
//	 {type: "limit", name: "limitToFirst", value: 10},
//	 {type: "filter", name: "startAt", valueType: "number", value: 18}]
type QuerySpec struct {
	Path       string
	Order      Order
	Child      string
	LimitFirst int
	LimitLast  int
	StartAt    Bound
	EndAt      Bound
	EqualTo    Bound
}

func invalid(format string, args ...any) error {
	return nativeerr.Wrap(nativeerr.InvalidArgument,
		fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...)))
}

// CleanPath normalizes a location path. The root is "/".
func CleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func ParseQuery(path string, modifiers gjson.Result) (QuerySpec, error) {
	spec := QuerySpec{Path: CleanPath(path)}
	if strings.ContainsAny(spec.Path, ".#$[]") {
		return QuerySpec{}, invalid("path %q contains illegal characters", spec.Path)
	}
	for _, m := range modifiers.Array() {
		name := m.Get("name").String()
		switch m.Get("type").String() {
		case "orderBy":
			if spec.Order != OrderNone {
				return QuerySpec{}, invalid("%s after %s", name, spec.Order)
			}
			switch o := Order(name); o {
			case OrderKey, OrderValue:
				spec.Order = o
			case OrderChild:
				spec.Order = o
				spec.Child = m.Get("key").String()
				if spec.Child == "" {
					return QuerySpec{}, invalid("orderByChild needs a key")
				}
			case OrderPriority:
				return QuerySpec{}, nativeerr.New(nativeerr.InvalidArgument, "orderByPriority is not supported")
			default:
				return QuerySpec{}, invalid("unknown order %q", name)
			}
		case "limit":
			n := int(m.Get("value").Int())
			if n <= 0 {
				return QuerySpec{}, invalid("%s must be positive", name)
			}
			switch name {
			case "limitToFirst":
				spec.LimitFirst = n
			case "limitToLast":
				spec.LimitLast = n
			default:
				return QuerySpec{}, invalid("unknown limit %q", name)
			}
		case "filter":
			v, err := filterValue(m)
			if err != nil {
				return QuerySpec{}, err
			}
			switch name {
			case "startAt":
				spec.StartAt = Bound{Set: true, Value: v}
			case "endAt":
				spec.EndAt = Bound{Set: true, Value: v}
			case "equalTo":
				spec.EqualTo = Bound{Set: true, Value: v}
			default:
				return QuerySpec{}, invalid("unknown filter %q", name)
			}
		default:
			return QuerySpec{}, invalid("unknown modifier %s", m.Raw)
		}
	}
	if spec.LimitFirst > 0 && spec.LimitLast > 0 {
		return QuerySpec{}, invalid("limitToFirst and limitToLast are exclusive")
	}
	if spec.IsQuery() && spec.Order == OrderNone {
		spec.Order = OrderKey
	}
	return spec, nil
}

func filterValue(m gjson.Result) (any, error) {
	v := m.Get("value")
	switch t := m.Get("valueType").String(); t {
	case "null":
		return nil, nil
	case "number":
		return v.Float(), nil
	case "boolean":
		return v.Bool(), nil
	case "string":
		return v.String(), nil
	case "":
		return v.Value(), nil
	default:
		return nil, invalid("unknown filter value type %q", t)
	}
}

// IsQuery reports whether any modifier narrows or orders the location.
func (s QuerySpec) IsQuery() bool {
	return s.Order != OrderNone || s.LimitFirst > 0 || s.LimitLast > 0 ||
		s.StartAt.Set || s.EndAt.Set || s.EqualTo.Set
}

func (s QuerySpec) Build(client *db.Client) *db.Query {
	ref := client.NewRef(s.Path)
	var q *db.Query
	switch s.Order {
	case OrderValue:
		q = ref.OrderByValue()
	case OrderChild:
		q = ref.OrderByChild(s.Child)
	default:
		q = ref.OrderByKey()
	}
	if s.LimitFirst > 0 {
		q = q.LimitToFirst(s.LimitFirst)
	}
	if s.LimitLast > 0 {
		q = q.LimitToLast(s.LimitLast)
	}
	if s.StartAt.Set {
		q = q.StartAt(s.StartAt.Value)
	}
	if s.EndAt.Set {
		q = q.EndAt(s.EndAt.Value)
	}
	if s.EqualTo.Set {
		q = q.EqualTo(s.EqualTo.Value)
	}
	return q
}

// Key identifies the query; listeners on equal keys observe the same data.
func (s QuerySpec) Key() string {
	if !s.IsQuery() {
		return s.Path
	}
	var b strings.Builder
	b.WriteString(s.Path)
	b.WriteString("?")
	b.WriteString(string(s.Order))
	if s.Child != "" {
		b.WriteString(":" + s.Child)
	}
	fmt.Fprintf(&b, "&first=%d&last=%d", s.LimitFirst, s.LimitLast)
	for _, bound := range []struct {
		name string
		b    Bound
	}{{"start", s.StartAt}, {"end", s.EndAt}, {"eq", s.EqualTo}} {
		if bound.b.Set {
			fmt.Fprintf(&b, "&%s=%#v", bound.name, bound.b.Value)
		}
	}
	return b.String()
}

// keyLess orders child keys the way the database does: keys that are
// 32-bit integers first in numeric order, then the rest lexicographically.
func keyLess(a, b string) bool {
	ai, aok := intKey(a)
	bi, bok := intKey(b)
	switch {
	case aok && bok:
		return ai < bi
	case aok:
		return true
	case bok:
		return false
	}
	return a < b
}

func intKey(k string) (int32, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') || strings.HasPrefix(k, "-0") {
		return 0, false
	}
	n, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}
