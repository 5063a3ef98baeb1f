package database

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
)

func TestParseQueryModifiers(t *testing.T) {
	spec, err := ParseQuery("/people/", gjson.Parse(`[
		{"type": "orderBy", "name": "orderByChild", "key": "age"},
		{"type": "limit", "name": "limitToFirst", "value": 10},
		{"type": "filter", "name": "startAt", "valueType": "number", "value": 18},
		{"type": "filter", "name": "endAt", "valueType": "null", "value": null}
	]`))
	require.NoError(t, err)

	assert.Equal(t, "people", spec.Path)
	assert.Equal(t, OrderChild, spec.Order)
	assert.Equal(t, "age", spec.Child)
	assert.Equal(t, 10, spec.LimitFirst)
	assert.Equal(t, Bound{Set: true, Value: float64(18)}, spec.StartAt)
	assert.Equal(t, Bound{Set: true, Value: nil}, spec.EndAt)
	assert.False(t, spec.EqualTo.Set)
	assert.True(t, spec.IsQuery())
}

func TestParseQueryPlainLocation(t *testing.T) {
	spec, err := ParseQuery("", gjson.Parse(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "/", spec.Path)
	assert.False(t, spec.IsQuery())
	assert.Equal(t, "/", spec.Key())
}

func TestParseQueryDefaultsToKeyOrder(t *testing.T) {
	spec, err := ParseQuery("rooms", gjson.Parse(`[{"type": "limit", "name": "limitToLast", "value": 2}]`))
	require.NoError(t, err)
	assert.Equal(t, OrderKey, spec.Order)
	assert.Equal(t, 2, spec.LimitLast)
}

func TestParseQueryRejects(t *testing.T) {
	cases := map[string]string{
		"priority":       `[{"type": "orderBy", "name": "orderByPriority"}]`,
		"two orders":     `[{"type": "orderBy", "name": "orderByKey"}, {"type": "orderBy", "name": "orderByValue"}]`,
		"child no key":   `[{"type": "orderBy", "name": "orderByChild"}]`,
		"zero limit":     `[{"type": "limit", "name": "limitToFirst", "value": 0}]`,
		"both limits":    `[{"type": "limit", "name": "limitToFirst", "value": 1}, {"type": "limit", "name": "limitToLast", "value": 1}]`,
		"bad filter":     `[{"type": "filter", "name": "near", "value": 1}]`,
		"bad value type": `[{"type": "filter", "name": "startAt", "valueType": "date", "value": 1}]`,
		"bad modifier":   `[{"type": "sort"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuery("rooms", gjson.Parse(raw))
			require.Error(t, err)
			assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))
		})
	}

	_, err := ParseQuery("rooms/a.b", gjson.Parse(`[]`))
	assert.Error(t, err)
}

func TestQueryKey(t *testing.T) {
	a, err := ParseQuery("rooms", gjson.Parse(`[{"type": "orderBy", "name": "orderByValue"}, {"type": "filter", "name": "equalTo", "valueType": "string", "value": "x"}]`))
	require.NoError(t, err)
	b, err := ParseQuery("rooms", gjson.Parse(`[{"type": "orderBy", "name": "orderByValue"}, {"type": "filter", "name": "equalTo", "valueType": "string", "value": "y"}]`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, "rooms", a.Key())
}

func TestKeyOrder(t *testing.T) {
	keys := []string{"b", "-3", "10", "a", "02", "2", "2147483648", "-0"}
	slices.SortFunc(keys, func(x, y string) int {
		switch {
		case keyLess(x, y):
			return -1
		case keyLess(y, x):
			return 1
		}
		return 0
	})
	assert.Equal(t, []string{"-3", "2", "10", "-0", "02", "2147483648", "a", "b"}, keys)
}
