package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertase/react-native-firebase/internal/codec"
	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

func TestDocumentMissing(t *testing.T) {
	s := New(nil)
	env, err := s.Document(models.Document{
		Path:   "users/ghost",
		Exists: false,
		Data:   map[string]any{"stale": true},
	}, Options{})
	require.NoError(t, err)

	assert.False(t, env.Exists)
	assert.True(t, env.Value.IsNull())
	assert.Equal(t, "ghost", env.Key)
}

func TestDocumentDeterministic(t *testing.T) {
	s := New(codec.New("[DEFAULT]", nil))
	doc := models.Document{
		Path:     "users/ada",
		Exists:   true,
		Data:     map[string]any{"z": 1, "a": "x", "m": map[string]any{"k": 2.5}},
		Metadata: models.Metadata{FromCache: true},
	}

	first, err := s.Document(doc, Options{Source: SourceCache})
	require.NoError(t, err)
	second, err := s.Document(doc, Options{Source: SourceCache})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), `"metadata":{"fromCache":true,"hasPendingWrites":false}`)
	assert.Contains(t, string(a), `"value":[16,{"a":[8,"x"],"m":[16,{"k":[7,2.5]}],"z":[17,1]}]`)
}

func TestDocumentUnsupportedData(t *testing.T) {
	s := New(nil)
	_, err := s.Document(models.Document{Path: "a/b", Exists: true, Data: map[string]any{"c": make(chan int)}}, Options{})
	assert.ErrorIs(t, err, tagged.ErrUnsupportedType)
}

func TestQueryDropsMetadataOnlyChanges(t *testing.T) {
	s := New(nil)
	doc := models.Document{Path: "rooms/a", Exists: true, Data: map[string]any{"n": 1}}
	res := models.QueryResult{
		Path: "rooms",
		Docs: []models.Document{doc},
		Changes: []models.Change{
			{Type: models.ChangeAdded, Doc: doc, OldIndex: -1, NewIndex: 0},
			{Type: models.ChangeModified, Doc: doc, OldIndex: 0, NewIndex: 0, MetadataOnly: true},
		},
	}

	env, err := s.Query(res, Options{})
	require.NoError(t, err)
	require.Len(t, env.Children, 1)
	require.Len(t, env.Changes, 1)
	assert.True(t, env.ExcludesMetadataChanges)

	env, err = s.Query(res, Options{IncludeMetadataChanges: true})
	require.NoError(t, err)
	require.Len(t, env.Changes, 2)
	assert.True(t, env.Changes[1].IsMetadataChange)
}

func TestChildPreviousKeyOnWire(t *testing.T) {
	s := New(nil)
	doc := models.Document{Path: "chat/b", Exists: true, Data: tagged.String("hi")}

	first, err := s.Child(doc, "", models.ChangeAdded, Options{Plain: true})
	require.NoError(t, err)
	raw, err := json.Marshal(first)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"previousKey":null`)
	assert.Contains(t, string(raw), `"value":"hi"`)

	after, err := s.Child(doc, "a", models.ChangeAdded, Options{Plain: true})
	require.NoError(t, err)
	raw, err = json.Marshal(after)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"previousKey":"a"`)

	removed, err := s.Child(doc, "a", models.ChangeRemoved, Options{Plain: true})
	require.NoError(t, err)
	raw, err = json.Marshal(removed)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "previousKey")
}

func TestApplyChildOrdering(t *testing.T) {
	var order []string
	order = ApplyChild(order, Envelope{Key: "a", ChangeType: models.ChangeAdded})
	order = ApplyChild(order, Envelope{Key: "b", ChangeType: models.ChangeAdded, PreviousKey: "a"})
	order = ApplyChild(order, Envelope{Key: "c", ChangeType: models.ChangeAdded, PreviousKey: "b"})
	assert.Equal(t, []string{"a", "b", "c"}, order)

	order = ApplyChild(order, Envelope{Key: "a", ChangeType: models.ChangeMoved, PreviousKey: "c"})
	assert.Equal(t, []string{"b", "c", "a"}, order)

	order = ApplyChild(order, Envelope{Key: "c", ChangeType: models.ChangeRemoved})
	assert.Equal(t, []string{"b", "a"}, order)

	order = ApplyChild(order, Envelope{Key: "b", ChangeType: models.ChangeModified, PreviousKey: ""})
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestApplyChanges(t *testing.T) {
	order := ApplyChanges(nil, []Change{
		{Type: models.ChangeAdded, Doc: Envelope{Key: "a"}, NewIndex: 0},
		{Type: models.ChangeAdded, Doc: Envelope{Key: "c"}, NewIndex: 1},
		{Type: models.ChangeAdded, Doc: Envelope{Key: "b"}, NewIndex: 1},
	})
	assert.Equal(t, []string{"a", "b", "c"}, order)

	order = ApplyChanges(order, []Change{
		{Type: models.ChangeRemoved, Doc: Envelope{Key: "a"}, OldIndex: 0, NewIndex: -1},
		{Type: models.ChangeModified, Doc: Envelope{Key: "c"}, OldIndex: 1, NewIndex: 0},
	})
	assert.Equal(t, []string{"c", "b"}, order)

	order = ApplyChanges([]string{"a", "b", "c", "d"}, []Change{
		{Type: models.ChangeMoved, Doc: Envelope{Key: "d"}, OldIndex: 3, NewIndex: 0},
		{Type: models.ChangeMoved, Doc: Envelope{Key: "a"}, OldIndex: 1, NewIndex: 1},
	})
	assert.Equal(t, []string{"d", "a", "b", "c"}, order)
}

func TestLocation(t *testing.T) {
	s := New(nil)
	env := s.Location("[DEFAULT]", "scores", []models.ChildValue{
		{Key: "zed", Value: tagged.Int(1)},
		{Key: "amy", Value: tagged.Int(5)},
	}, Options{Plain: true})

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"value":{"zed":1,"amy":5}`)
	assert.Contains(t, string(raw), `"childKeys":["zed","amy"]`)

	empty := s.Location("[DEFAULT]", "scores", nil, Options{})
	assert.False(t, empty.Exists)
	assert.True(t, empty.Value.IsNull())
}
