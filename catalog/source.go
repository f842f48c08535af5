package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Entry is one product reference in a catalog definition. Display defaults
// to true when the definition omits it.
type Entry struct {
	ProductID string
	Display   bool
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      string `json:"id"`
		Display *bool  `json:"display"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.ProductID = aux.ID
	e.Display = aux.Display == nil || *aux.Display
	return nil
}

// Group is a named bundle of products gating one purchasable feature.
type Group struct {
	Name  string
	Items []Entry
}

// Definition is the grouped identifier list a catalog is built from.
type Definition []Group

// Source supplies a catalog definition. Parsing of external formats lives
// behind this interface; a failed Load leaves the catalog empty and
// reportable, never silently partial.
type Source interface {
	Load(ctx context.Context) (Definition, error)
}

// StaticSource serves a fixed in-memory definition.
type StaticSource Definition

func (s StaticSource) Load(ctx context.Context) (Definition, error) {
	_ = ctx
	return Definition(s), nil
}

// FileSource reads a JSON definition file shaped as
//
//	{"video": [{"id": "com.example.video1"}, {"id": "com.example.video2", "display": false}]}
//
// Groups are ordered by name for determinism.
type FileSource string

func (f FileSource) Load(ctx context.Context) (Definition, error) {
	_ = ctx
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read catalog definition: %w", err)
	}
	var raw map[string][]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog definition %s: %w", string(f), err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	def := make(Definition, 0, len(raw))
	for _, name := range names {
		def = append(def, Group{Name: name, Items: raw[name]})
	}
	return def, nil
}
