package firestore

import (
	"context"
	"testing"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

const fullQuery = `{
	"path": "rooms",
	"type": "collection",
	"filters": [
		{"fieldPath": {"type": "string", "string": "owner.name"}, "operator": "EQUAL", "value": [8, "ada"]},
		{"fieldPath": {"type": "fieldpath", "elements": ["stats", "score"]}, "operator": "GREATER_THAN_OR_EQUAL", "value": [17, 10]},
		{"fieldPath": "tags", "operator": "ARRAY_CONTAINS_ANY", "value": [10, [[8, "go"], [8, "rn"]]]}
	],
	"orders": [
		{"fieldPath": {"type": "string", "string": "stats.score"}, "direction": "DESCENDING"},
		{"fieldPath": "__name__", "direction": "ASCENDING"}
	],
	"options": {"limit": 20, "startAfter": [[17, 100], [8, "rooms/x"]]}
}`

func TestParseQuery(t *testing.T) {
	spec, err := ParseQuery(gjson.Parse(fullQuery))
	require.NoError(t, err)

	assert.Equal(t, "rooms", spec.Path)
	assert.Equal(t, QueryCollection, spec.Type)
	require.Len(t, spec.Filters, 3)
	assert.Equal(t, gcfirestore.FieldPath{"owner", "name"}, spec.Filters[0].FieldPath)
	assert.Equal(t, "==", spec.Filters[0].Op)
	assert.Equal(t, "ada", spec.Filters[0].Value.Text())
	assert.Equal(t, gcfirestore.FieldPath{"stats", "score"}, spec.Filters[1].FieldPath)
	assert.Equal(t, ">=", spec.Filters[1].Op)
	assert.Equal(t, int64(10), spec.Filters[1].Value.Int())
	assert.Equal(t, "array-contains-any", spec.Filters[2].Op)
	assert.Equal(t, 2, spec.Filters[2].Value.Len())

	require.Len(t, spec.Orders, 2)
	assert.Equal(t, gcfirestore.Desc, spec.Orders[0].Direction)
	assert.Equal(t, gcfirestore.FieldPath{gcfirestore.DocumentID}, spec.Orders[1].FieldPath)

	assert.Equal(t, 20, spec.Limit)
	require.Len(t, spec.StartAfter, 2)
	assert.Empty(t, spec.StartAt)
}

func TestParseQueryRejects(t *testing.T) {
	cases := map[string]string{
		"document path":      `{"path": "rooms/a"}`,
		"empty segment":      `{"path": "rooms//a/b"}`,
		"group with slash":   `{"path": "rooms/a", "type": "collectionGroup"}`,
		"unknown type":       `{"path": "rooms", "type": "view"}`,
		"unknown operator":   `{"path": "rooms", "filters": [{"fieldPath": "a", "operator": "LIKE", "value": [3]}]}`,
		"bad value":          `{"path": "rooms", "filters": [{"fieldPath": "a", "operator": "EQUAL", "value": [99, 1]}]}`,
		"empty field":        `{"path": "rooms", "filters": [{"fieldPath": "a..b", "operator": "EQUAL", "value": [3]}]}`,
		"bad direction":      `{"path": "rooms", "orders": [{"fieldPath": "a", "direction": "UP"}]}`,
		"both limits":        `{"path": "rooms", "orders": [{"fieldPath": "a"}], "options": {"limit": 1, "limitToLast": 1}}`,
		"unordered last":     `{"path": "rooms", "options": {"limitToLast": 1}}`,
		"cursor not a list":  `{"path": "rooms", "options": {"endAt": [8, "x"]}}`,
		"negative limit":     `{"path": "rooms", "options": {"limit": -1}}`,
		"field path garbage": `{"path": "rooms", "orders": [{"fieldPath": 12}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuery(gjson.Parse(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseQueryInvalidArgumentCode(t *testing.T) {
	_, err := ParseQuery(gjson.Parse(`{"path": "rooms/a"}`))
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParseCollectionGroup(t *testing.T) {
	spec, err := ParseQuery(gjson.Parse(`{"path": "messages", "type": "collectionGroup"}`))
	require.NoError(t, err)
	assert.Equal(t, QueryCollectionGroup, spec.Type)
}

func TestQueryKeyDistinguishesQueries(t *testing.T) {
	a, err := ParseQuery(gjson.Parse(fullQuery))
	require.NoError(t, err)
	b, err := ParseQuery(gjson.Parse(fullQuery))
	require.NoError(t, err)
	assert.Equal(t, a.Key(), b.Key())

	b.Limit = 21
	assert.NotEqual(t, a.Key(), b.Key())

	c, err := ParseQuery(gjson.Parse(`{"path": "rooms"}`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSetOptions(t *testing.T) {
	assert.Nil(t, SetOptions{}.native())
	assert.Len(t, SetOptions{Merge: true}.native(), 1)
	assert.Len(t, SetOptions{Merge: true, MergeFields: []gcfirestore.FieldPath{{"a"}}}.native(), 1)
}

func TestChangeType(t *testing.T) {
	assert.Equal(t, models.ChangeAdded, changeType(gcfirestore.DocumentAdded))
	assert.Equal(t, models.ChangeModified, changeType(gcfirestore.DocumentModified))
	assert.Equal(t, models.ChangeRemoved, changeType(gcfirestore.DocumentRemoved))
}

func emulatorAdapter(t *testing.T) *Adapter {
	t.Helper()
	// The emulator setting skips credential lookup; nothing is dialed until
	// a request is made.
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:1")
	ctx := context.Background()
	client, err := gcfirestore.NewClient(ctx, "demo-bridge")
	require.NoError(t, err)
	a := New(ctx, "app", client, nil)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBuildQuery(t *testing.T) {
	a := emulatorAdapter(t)
	spec, err := ParseQuery(gjson.Parse(fullQuery))
	require.NoError(t, err)

	_, err = spec.Build(a.client, a.Codec())
	require.NoError(t, err)

	spec.Filters[0].Value = tagged.Reference(tagged.Ref{Store: "app", Path: "rooms/x/y"})
	_, err = spec.Build(a.client, a.Codec())
	assert.Error(t, err)
}

func TestWriteArgumentChecks(t *testing.T) {
	a := emulatorAdapter(t)
	ctx := context.Background()

	err := a.Set(ctx, "rooms", tagged.Map(), SetOptions{})
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))

	err = a.Set(ctx, "rooms/a", tagged.Int(1), SetOptions{})
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))

	err = a.Update(ctx, "rooms/a", tagged.Map(tagged.F("a..b", tagged.Int(1))))
	assert.Equal(t, nativeerr.InvalidArgument, nativeerr.CodeOf(err))

	_, err = a.WatchDocument("rooms", nil)
	assert.Error(t, err)
}

func TestUpdatesSplitFieldPaths(t *testing.T) {
	a := emulatorAdapter(t)
	ups, err := a.updates(tagged.Map(
		tagged.F("stats.score", tagged.Int(3)),
		tagged.F("name", tagged.String("ada")),
	))
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, gcfirestore.FieldPath{"stats", "score"}, ups[0].FieldPath)
	assert.Equal(t, int64(3), ups[0].Value)
	assert.Equal(t, gcfirestore.FieldPath{"name"}, ups[1].FieldPath)
}
