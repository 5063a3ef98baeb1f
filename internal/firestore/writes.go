package firestore

import (
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

// ParseData reads document data sent either as one map type array or as an
// object whose properties are type arrays.
func ParseData(r gjson.Result) (tagged.Value, error) {
	if r.IsArray() {
		v, err := tagged.FromResult(r)
		if err != nil {
			return tagged.Value{}, err
		}
		if v.Kind() != tagged.KindMap {
			return tagged.Value{}, invalid("document data must be a map, got %s", v.Kind())
		}
		return v, nil
	}
	if !r.IsObject() {
		return tagged.Value{}, invalid("document data must be an object")
	}
	var (
		fields []tagged.Field
		err    error
	)
	r.ForEach(func(k, item gjson.Result) bool {
		var v tagged.Value
		if v, err = tagged.FromResult(item); err != nil {
			return false
		}
		fields = append(fields, tagged.F(k.String(), v))
		return true
	})
	if err != nil {
		return tagged.Value{}, err
	}
	return tagged.Map(fields...), nil
}

// ParseSetOptions reads {merge, mergeFields}.
func ParseSetOptions(r gjson.Result) (SetOptions, error) {
	opts := SetOptions{Merge: r.Get("merge").Bool()}
	for _, f := range r.Get("mergeFields").Array() {
		fp, err := parseFieldPath(f)
		if err != nil {
			return SetOptions{}, err
		}
		opts.MergeFields = append(opts.MergeFields, fp)
	}
	return opts, nil
}

// ParseWrites reads a batch: [{type, path, data, options}].
func ParseWrites(r gjson.Result) ([]Write, error) {
	if !r.IsArray() {
		return nil, invalid("writes must be a list")
	}
	var out []Write
	for _, item := range r.Array() {
		w := Write{
			Type: WriteType(item.Get("type").String()),
			Path: item.Get("path").String(),
		}
		var err error
		switch w.Type {
		case WriteSet:
			if w.Options, err = ParseSetOptions(item.Get("options")); err != nil {
				return nil, err
			}
			fallthrough
		case WriteUpdate:
			if w.Data, err = ParseData(item.Get("data")); err != nil {
				return nil, err
			}
		case WriteDelete:
		default:
			return nil, invalid("unknown write type %q", w.Type)
		}
		out = append(out, w)
	}
	return out, nil
}
