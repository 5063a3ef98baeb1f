package models

import (
	"github.com/tidwall/btree"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

type child struct {
	ChildValue
	rank int
}

// ChildTree keeps the children of a database location in query order and
// answers which sibling precedes a given key.
type ChildTree struct {
	tree  *btree.BTreeG[child]
	byKey map[string]child
}

type Neighbors struct {
	Prev *ChildValue
	Next *ChildValue
}

func byRank(a, b child) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.Key < b.Key
}

// NewChildTree builds a tree from children already sorted in query order.
func NewChildTree(children []ChildValue) *ChildTree {
	t := &ChildTree{
		tree:  btree.NewBTreeG(byRank),
		byKey: make(map[string]child, len(children)),
	}
	for i, c := range children {
		item := child{ChildValue: c, rank: i}
		t.tree.Set(item)
		t.byKey[c.Key] = item
	}
	return t
}

func (t *ChildTree) Len() int { return t.tree.Len() }

func (t *ChildTree) Get(key string) (ChildValue, bool) {
	c, ok := t.byKey[key]
	return c.ChildValue, ok
}

func (t *ChildTree) GetNeighbors(key string) Neighbors {
	var n Neighbors
	c, ok := t.byKey[key]
	if !ok {
		return n
	}

	iter := t.tree.Iter()
	defer iter.Release()

	if !iter.Seek(c) {
		return n
	}
	if iter.Prev() {
		v := iter.Item().ChildValue
		n.Prev = &v
	}

	iter.Seek(c)
	if iter.Next() {
		v := iter.Item().ChildValue
		n.Next = &v
	}
	return n
}

// PreviousKey returns the key of the sibling before key, or "" when key is
// first or absent.
func (t *ChildTree) PreviousKey(key string) string {
	if n := t.GetNeighbors(key); n.Prev != nil {
		return n.Prev.Key
	}
	return ""
}

func (t *ChildTree) Children() []ChildValue {
	items := make([]ChildValue, 0, t.tree.Len())
	t.tree.Scan(func(c child) bool {
		items = append(items, c.ChildValue)
		return true
	})
	return items
}

type ChildEvent struct {
	Type        ChangeType
	Child       ChildValue
	PreviousKey string
}

// DiffChildren reports how next differs from prev as child events in the
// order a listener expects them: removals, then additions, changes and
// moves in next's order.
func DiffChildren(prev, next *ChildTree) []ChildEvent {
	var events []ChildEvent
	for _, c := range prev.Children() {
		if _, ok := next.Get(c.Key); !ok {
			events = append(events, ChildEvent{Type: ChangeRemoved, Child: c})
		}
	}
	for _, c := range next.Children() {
		prevKey := next.PreviousKey(c.Key)
		old, existed := prev.Get(c.Key)
		switch {
		case !existed:
			events = append(events, ChildEvent{Type: ChangeAdded, Child: c, PreviousKey: prevKey})
		case !tagged.Equal(old.Value, c.Value):
			events = append(events, ChildEvent{Type: ChangeModified, Child: c, PreviousKey: prevKey})
			if moved(prev, next, c.Key) {
				events = append(events, ChildEvent{Type: ChangeMoved, Child: c, PreviousKey: prevKey})
			}
		case moved(prev, next, c.Key):
			events = append(events, ChildEvent{Type: ChangeMoved, Child: c, PreviousKey: prevKey})
		}
	}
	return events
}

// moved reports whether key's predecessor changed among the keys present in
// both trees. Insertions and removals of other children alone do not count.
func moved(prev, next *ChildTree, key string) bool {
	return survivingPrev(prev, next, key) != survivingPrev(next, prev, key)
}

func survivingPrev(in, other *ChildTree, key string) string {
	c, ok := in.byKey[key]
	if !ok {
		return ""
	}
	prev := ""
	in.tree.Descend(c, func(item child) bool {
		if item.Key == key {
			return true
		}
		if _, ok := other.byKey[item.Key]; ok {
			prev = item.Key
			return false
		}
		return true
	})
	return prev
}
