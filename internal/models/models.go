package models

import (
	"context"
	"path"
	"sync"

	"github.com/invertase/react-native-firebase/internal/tagged"
)

type Metadata struct {
	FromCache        bool `json:"fromCache"`
	HasPendingWrites bool `json:"hasPendingWrites"`
}

// Document is a native snapshot of one document or database location as
// the SDK adapters report it. Data holds whatever the SDK produced: a
// map[string]any for documents or an already ordered tagged.Value for
// database locations.
type Document struct {
	Store    string
	Path     string
	Exists   bool
	Data     any
	Metadata Metadata
}

func (d Document) Key() string {
	if d.Path == "" || d.Path == "/" {
		return ""
	}
	return path.Base(d.Path)
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
	ChangeMoved    ChangeType = "moved"
)

type Change struct {
	Type         ChangeType
	Doc          Document
	OldIndex     int
	NewIndex     int
	MetadataOnly bool
}

type QueryResult struct {
	Store    string
	Path     string
	Docs     []Document
	Changes  []Change
	Metadata Metadata
}

// Listener receives native callbacks for one registration. Each callback
// kind has its own method.
type Listener interface {
	OnValue(ctx context.Context, doc Document)
	OnChildAdded(ctx context.Context, doc Document, previousKey string)
	OnChildChanged(ctx context.Context, doc Document, previousKey string)
	OnChildRemoved(ctx context.Context, doc Document)
	OnChildMoved(ctx context.Context, doc Document, previousKey string)
	OnQuery(ctx context.Context, result QueryResult)
	OnError(ctx context.Context, err error)
}

// Handle is the SDK side of a live subscription.
type Handle interface {
	Release()
}

// HandleFunc adapts a plain function to Handle. The function runs at most
// once no matter how often Release is called.
func HandleFunc(fn func()) Handle {
	return &funcHandle{fn: fn}
}

type funcHandle struct {
	once sync.Once
	fn   func()
}

func (h *funcHandle) Release() {
	h.once.Do(func() {
		if h.fn != nil {
			h.fn()
		}
	})
}

// ChildValue is one child of a database location in query order.
type ChildValue struct {
	Key   string
	Value tagged.Value
}
