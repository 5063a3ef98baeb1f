// Package snapshot turns native document, location and query snapshots into
// Envelopes, the plain tagged payload delivered to the application layer.
package snapshot

import (
	"encoding/json"

	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

type Source string

const (
	SourceDefault Source = "default"
	SourceServer  Source = "server"
	SourceCache   Source = "cache"
)

func ParseSource(s string) Source {
	switch Source(s) {
	case SourceServer, SourceCache:
		return Source(s)
	}
	return SourceDefault
}

type Options struct {
	IncludeMetadataChanges bool
	Source                 Source
	// Plain renders values as untyped JSON, the form database listeners
	// expect, instead of type arrays.
	Plain bool
}

// Envelope is immutable once built. A missing target always has
// Exists=false and a Null value.
type Envelope struct {
	Key                     string
	Path                    string
	Exists                  bool
	Value                   tagged.Value
	Metadata                models.Metadata
	ChangeType              models.ChangeType
	PreviousKey             string
	Children                []Envelope
	Changes                 []Change
	Source                  Source
	ExcludesMetadataChanges bool
	// Plain marks envelopes whose value goes out as untyped JSON.
	Plain bool
}

type Change struct {
	Type             models.ChangeType
	Doc              Envelope
	OldIndex         int
	NewIndex         int
	IsMetadataChange bool
}

// IsChild reports whether the envelope describes a child event.
func (e Envelope) IsChild() bool { return e.ChangeType != "" }

type wireEnvelope struct {
	Key                     string           `json:"key"`
	Path                    string           `json:"path"`
	Exists                  bool             `json:"exists"`
	Value                   json.RawMessage  `json:"value"`
	Metadata                *models.Metadata `json:"metadata,omitempty"`
	PreviousKey             json.RawMessage  `json:"previousKey,omitempty"`
	ChildKeys               []string         `json:"childKeys,omitempty"`
	Children                []Envelope       `json:"children,omitempty"`
	Changes                 []Change         `json:"changes,omitempty"`
	Source                  Source           `json:"source,omitempty"`
	ExcludesMetadataChanges bool             `json:"excludesMetadataChanges,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		Key:                     e.Key,
		Path:                    e.Path,
		Exists:                  e.Exists,
		Children:                e.Children,
		Changes:                 e.Changes,
		Source:                  e.Source,
		ExcludesMetadataChanges: e.ExcludesMetadataChanges,
	}
	if e.Plain {
		w.Value = e.Value.Plain()
		if e.Value.Kind() == tagged.KindMap {
			for _, f := range e.Value.Fields() {
				w.ChildKeys = append(w.ChildKeys, f.Key)
			}
		}
	} else {
		raw, err := e.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.Value = raw
		w.Metadata = &e.Metadata
	}
	if e.IsChild() && e.ChangeType != models.ChangeRemoved {
		w.PreviousKey = json.RawMessage("null")
		if e.PreviousKey != "" {
			w.PreviousKey, _ = json.Marshal(e.PreviousKey)
		}
	}
	return json.Marshal(w)
}

func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type             models.ChangeType `json:"type"`
		Doc              Envelope          `json:"doc"`
		OldIndex         int               `json:"oi"`
		NewIndex         int               `json:"ni"`
		IsMetadataChange bool              `json:"isMetadataChange"`
	}{c.Type, c.Doc, c.OldIndex, c.NewIndex, c.IsMetadataChange})
}
