package codec

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	native := map[string]any{
		"name":  "ada",
		"count": int64(7),
		"ratio": 0.75,
		"ok":    true,
		"none":  nil,
		"when":  when,
		"blob":  []byte("hi"),
		"list":  []any{"a", int64(1), nil},
		"where": &latlng.LatLng{Latitude: 1.5, Longitude: -2.25},
		"owner": tagged.Ref{Store: "[DEFAULT]", Path: "users/ada"},
		"deep":  map[string]any{"x": map[string]any{"y": false}},
	}

	c := New("[DEFAULT]", nil)
	v, err := c.Encode(native)
	require.NoError(t, err)

	back, err := c.Decode(v)
	require.NoError(t, err)

	out := back.(map[string]any)
	assert.Equal(t, "ada", out["name"])
	assert.Equal(t, int64(7), out["count"])
	assert.Equal(t, 0.75, out["ratio"])
	assert.Equal(t, true, out["ok"])
	assert.Nil(t, out["none"])
	assert.True(t, when.Equal(out["when"].(time.Time)))
	assert.Equal(t, []byte("hi"), out["blob"])
	assert.Equal(t, []any{"a", int64(1), nil}, out["list"])
	where := out["where"].(*latlng.LatLng)
	assert.Equal(t, 1.5, where.GetLatitude())
	assert.Equal(t, -2.25, where.GetLongitude())
	assert.Equal(t, tagged.Ref{Store: "[DEFAULT]", Path: "users/ada"}, out["owner"])
	assert.Equal(t, map[string]any{"x": map[string]any{"y": false}}, out["deep"])

	again, err := c.Encode(back)
	require.NoError(t, err)
	assert.True(t, tagged.Equal(v, again))
}

func TestEncodeSortsMapKeys(t *testing.T) {
	v, err := Encode(map[string]any{"c": 1, "a": 2, "b": 3})
	require.NoError(t, err)

	var keys []string
	for _, f := range v.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestEncodeTypedContainers(t *testing.T) {
	v, err := Encode(map[string]int{"n": 4})
	require.NoError(t, err)
	n, ok := v.Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(4), n.Int())

	v, err = Encode([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Len())
}

func TestEncodeUnsupported(t *testing.T) {
	_, err := Encode(make(chan int))
	assert.ErrorIs(t, err, tagged.ErrUnsupportedType)

	_, err = Encode(map[string]any{"f": func() {}})
	assert.ErrorIs(t, err, tagged.ErrUnsupportedType)

	_, err = Encode(map[int]string{1: "x"})
	assert.ErrorIs(t, err, tagged.ErrUnsupportedType)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(tagged.Time(tagged.Timestamp{Seconds: 1, Nanos: -5}))
	assert.ErrorIs(t, err, tagged.ErrMalformedValue)

	_, err = Decode(tagged.Reference(tagged.Ref{Path: "users//ada"}))
	assert.ErrorIs(t, err, tagged.ErrMalformedValue)

	_, err = Decode(tagged.Transform(tagged.FieldTransform{Op: tagged.OpIncrement}))
	assert.ErrorIs(t, err, tagged.ErrMalformedValue)
}

func TestDecodeNumbers(t *testing.T) {
	n, err := Decode(tagged.Float(math.Inf(1)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(n.(float64), 1))

	n, err = Decode(tagged.Int(-3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), n)
}

func TestDocumentPaths(t *testing.T) {
	assert.NoError(t, ValidateDocumentPath("users/ada"))
	assert.NoError(t, ValidateDocumentPath("users/ada/posts/1"))
	assert.ErrorIs(t, ValidateDocumentPath("users"), tagged.ErrMalformedValue)
	assert.ErrorIs(t, ValidateDocumentPath("/users/ada"), tagged.ErrMalformedValue)
	assert.Equal(t, "users/ada", RelativePath("projects/p/databases/(default)/documents/users/ada"))
}

func TestRestoreNulls(t *testing.T) {
	in := tagged.FromPlain(gjson.Parse(
		`{"a":{"__rnfbNull":true},"b":[null,{"c":{"__rnfbNull":true}}],"d":{"__rnfbNull":false}}`,
	))
	out := RestoreNulls(in)

	want := tagged.FromPlain(gjson.Parse(`{"a":null,"b":[null,{"c":null}],"d":{"__rnfbNull":false}}`))
	assert.True(t, tagged.Equal(want, out), "got %s", out.Plain())
}
