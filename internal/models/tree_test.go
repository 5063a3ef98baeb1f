package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

func children(kv ...any) []ChildValue {
	out := make([]ChildValue, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		out = append(out, ChildValue{Key: kv[i].(string), Value: tagged.Int(int64(kv[i+1].(int)))})
	}
	return out
}

func TestChildTreeNeighbors(t *testing.T) {
	tree := NewChildTree(children("b", 1, "a", 2, "c", 3))

	assert.Equal(t, "", tree.PreviousKey("b"))
	assert.Equal(t, "b", tree.PreviousKey("a"))
	assert.Equal(t, "a", tree.PreviousKey("c"))
	assert.Equal(t, "", tree.PreviousKey("missing"))

	n := tree.GetNeighbors("a")
	require.NotNil(t, n.Prev)
	require.NotNil(t, n.Next)
	assert.Equal(t, "b", n.Prev.Key)
	assert.Equal(t, "c", n.Next.Key)
}

func TestDiffChildren(t *testing.T) {
	prev := NewChildTree(children("a", 1, "b", 2, "c", 3))
	next := NewChildTree(children("a", 1, "c", 30, "d", 4))

	events := DiffChildren(prev, next)
	require.Len(t, events, 3)

	assert.Equal(t, ChangeRemoved, events[0].Type)
	assert.Equal(t, "b", events[0].Child.Key)

	assert.Equal(t, ChangeModified, events[1].Type)
	assert.Equal(t, "c", events[1].Child.Key)
	assert.Equal(t, "a", events[1].PreviousKey)

	assert.Equal(t, ChangeAdded, events[2].Type)
	assert.Equal(t, "d", events[2].Child.Key)
	assert.Equal(t, "c", events[2].PreviousKey)
}

func TestDiffChildrenMoves(t *testing.T) {
	prev := NewChildTree(children("a", 1, "b", 2, "c", 3))
	next := NewChildTree(children("a", 1, "c", 3, "b", 2))

	events := DiffChildren(prev, next)
	var movedKeys []string
	for _, e := range events {
		require.Equal(t, ChangeMoved, e.Type)
		movedKeys = append(movedKeys, e.Child.Key)
	}
	assert.Contains(t, movedKeys, "b")
	assert.NotContains(t, movedKeys, "a")
}

func TestHandleFuncReleasesOnce(t *testing.T) {
	calls := 0
	h := HandleFunc(func() { calls++ })
	h.Release()
	h.Release()
	assert.Equal(t, 1, calls)
}
