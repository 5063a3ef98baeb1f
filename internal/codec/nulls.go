package codec

import "github.com/invertase/react-native-firebase/internal/tagged"

// NullSentinelKey marks an object property whose value is null. Some
// application runtimes drop null properties when marshaling objects, so the
// caller replaces them with {"__rnfbNull": true} before sending.
const NullSentinelKey = "__rnfbNull"

func isNullSentinel(v tagged.Value) bool {
	if v.Kind() != tagged.KindMap || v.Len() != 1 {
		return false
	}
	f := v.Fields()[0]
	return f.Key == NullSentinelKey && f.Value.Kind() == tagged.KindBoolean && f.Value.Bool()
}

// RestoreNulls returns v with every sentinel object property replaced by
// Null. Arrays carry nulls natively and are only descended into.
func RestoreNulls(v tagged.Value) tagged.Value {
	switch v.Kind() {
	case tagged.KindMap:
		fields := make([]tagged.Field, 0, v.Len())
		for _, f := range v.Fields() {
			if isNullSentinel(f.Value) {
				fields = append(fields, tagged.Field{Key: f.Key, Value: tagged.Null()})
				continue
			}
			fields = append(fields, tagged.Field{Key: f.Key, Value: RestoreNulls(f.Value)})
		}
		return tagged.Map(fields...)
	case tagged.KindArray:
		items := make([]tagged.Value, 0, v.Len())
		for _, it := range v.Items() {
			items = append(items, RestoreNulls(it))
		}
		return tagged.Array(items...)
	}
	return v
}
