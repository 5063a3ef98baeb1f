package snapshot

import (
	"fmt"
	"path"
	"slices"

	"github.com/invertase/react-native-firebase/internal/codec"
	"github.com/invertase/react-native-firebase/internal/models"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

// Serializer is pure: the same snapshot and options always produce the
// same Envelope.
type Serializer struct {
	codec *codec.Codec
}

func New(c *codec.Codec) *Serializer {
	if c == nil {
		c = codec.New("", nil)
	}
	return &Serializer{codec: c}
}

func (s *Serializer) Document(doc models.Document, opts Options) (Envelope, error) {
	env := Envelope{
		Key:                     doc.Key(),
		Path:                    doc.Path,
		Exists:                  doc.Exists,
		Value:                   tagged.Null(),
		Metadata:                doc.Metadata,
		Source:                  opts.Source,
		ExcludesMetadataChanges: !opts.IncludeMetadataChanges,
		Plain:                   opts.Plain,
	}
	if !doc.Exists {
		return env, nil
	}
	v, err := s.codec.Encode(doc.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("serialize %s: %w", doc.Path, err)
	}
	env.Value = v
	return env, nil
}

// Child serializes a child event. previousKey is "" when the child is first.
func (s *Serializer) Child(doc models.Document, previousKey string, change models.ChangeType, opts Options) (Envelope, error) {
	env, err := s.Document(doc, opts)
	if err != nil {
		return Envelope{}, err
	}
	env.ChangeType = change
	if change != models.ChangeRemoved {
		env.PreviousKey = previousKey
	}
	return env, nil
}

// Query serializes a collection result. Children keep the result order.
// Metadata-only changes are dropped unless the options ask for them.
func (s *Serializer) Query(res models.QueryResult, opts Options) (Envelope, error) {
	env := Envelope{
		Key:                     path.Base(res.Path),
		Path:                    res.Path,
		Exists:                  len(res.Docs) > 0,
		Value:                   tagged.Null(),
		Metadata:                res.Metadata,
		Source:                  opts.Source,
		ExcludesMetadataChanges: !opts.IncludeMetadataChanges,
		Plain:                   opts.Plain,
		Children:                make([]Envelope, 0, len(res.Docs)),
	}
	for _, d := range res.Docs {
		child, err := s.Document(d, opts)
		if err != nil {
			return Envelope{}, err
		}
		env.Children = append(env.Children, child)
	}
	for _, c := range res.Changes {
		if c.MetadataOnly && !opts.IncludeMetadataChanges {
			continue
		}
		doc, err := s.Document(c.Doc, opts)
		if err != nil {
			return Envelope{}, err
		}
		env.Changes = append(env.Changes, Change{
			Type:             c.Type,
			Doc:              doc,
			OldIndex:         c.OldIndex,
			NewIndex:         c.NewIndex,
			IsMetadataChange: c.MetadataOnly,
		})
	}
	return env, nil
}

// Location serializes a database location whose children arrive in query
// order. The value is a map in that order.
func (s *Serializer) Location(store, location string, children []models.ChildValue, opts Options) Envelope {
	fields := make([]tagged.Field, 0, len(children))
	for _, c := range children {
		fields = append(fields, tagged.Field{Key: c.Key, Value: c.Value})
	}
	env := Envelope{
		Key:                     models.Document{Path: location}.Key(),
		Path:                    location,
		Exists:                  len(children) > 0,
		Value:                   tagged.Null(),
		Source:                  opts.Source,
		ExcludesMetadataChanges: !opts.IncludeMetadataChanges,
		Plain:                   opts.Plain,
	}
	if env.Exists {
		env.Value = tagged.Map(fields...)
	}
	return env
}

// ApplyChild updates an ordered key list with one child event: additions
// and moves land right after PreviousKey, or first when it is empty.
func ApplyChild(order []string, e Envelope) []string {
	order = slices.DeleteFunc(slices.Clone(order), func(k string) bool {
		return k == e.Key && e.ChangeType != models.ChangeModified
	})
	switch e.ChangeType {
	case models.ChangeRemoved:
		return order
	case models.ChangeAdded, models.ChangeMoved:
		return insertAfter(order, e.Key, e.PreviousKey)
	case models.ChangeModified:
		if i := slices.Index(order, e.Key); i >= 0 {
			return order
		}
		return insertAfter(order, e.Key, e.PreviousKey)
	}
	return order
}

func insertAfter(order []string, key, previous string) []string {
	if previous == "" {
		return slices.Insert(order, 0, key)
	}
	i := slices.Index(order, previous)
	if i < 0 {
		return append(order, key)
	}
	return slices.Insert(order, i+1, key)
}

// ApplyChanges replays index based collection changes over the previous
// ordered children and returns the new order.
func ApplyChanges(order []string, changes []Change) []string {
	order = slices.Clone(order)
	for _, c := range changes {
		switch c.Type {
		case models.ChangeRemoved:
			if c.OldIndex >= 0 && c.OldIndex < len(order) {
				order = slices.Delete(order, c.OldIndex, c.OldIndex+1)
			}
		case models.ChangeAdded:
			order = slices.Insert(order, min(max(c.NewIndex, 0), len(order)), c.Doc.Key)
		case models.ChangeModified, models.ChangeMoved:
			if c.OldIndex == c.NewIndex || c.OldIndex < 0 || c.OldIndex >= len(order) {
				continue
			}
			order = slices.Delete(order, c.OldIndex, c.OldIndex+1)
			order = slices.Insert(order, min(max(c.NewIndex, 0), len(order)), c.Doc.Key)
		}
	}
	return order
}
