package graph

import (
	"context"
	"errors"
	"fmt"
)

var ErrMissingIdentity = errors.New("missing identity field")

// NodeRef addresses a node by label and identity key value.
type NodeRef struct {
	Label Label
	Key   string
}

func (r NodeRef) String() string { return string(r.Label) + "/" + r.Key }

// NodeWrite creates the node if absent and applies Props under the label's policies.
// Nil and empty-string values count as absent and are never written.
type NodeWrite struct {
	Label Label
	Key   string
	Props map[string]any
}

// EdgeWrite merges From-[Type]->To. Both endpoints are matched, never created: when one is
// missing the write is a no-op.
type EdgeWrite struct {
	From NodeRef
	Type RelType
	To   NodeRef
}

// Tx collects the writes of one transaction.
type Tx interface {
	MergeNode(w NodeWrite) error
	MergeEdge(w EdgeWrite) error
}

// Store runs fn inside one write transaction. Either every write of fn is committed or none
// is; the transaction scope is released before ExecuteWrite returns.
type Store interface {
	ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error
}

func checkNode(w NodeWrite) (NodeSpec, error) {
	spec, ok := SpecFor(w.Label)
	if !ok {
		return NodeSpec{}, fmt.Errorf("graph: unknown label %q", w.Label)
	}
	if w.Key == "" {
		return NodeSpec{}, fmt.Errorf("graph: %s.%s: %w", w.Label, spec.Key, ErrMissingIdentity)
	}
	for name := range w.Props {
		if _, ok := spec.prop(name); !ok {
			return NodeSpec{}, fmt.Errorf("graph: %s has no property %q", w.Label, name)
		}
	}
	return spec, nil
}

func checkEdge(w EdgeWrite) error {
	if _, ok := relTypes[w.Type]; !ok {
		return fmt.Errorf("graph: unknown relationship %q", w.Type)
	}
	for _, ref := range []NodeRef{w.From, w.To} {
		spec, ok := SpecFor(ref.Label)
		if !ok {
			return fmt.Errorf("graph: unknown label %q", ref.Label)
		}
		if ref.Key == "" {
			return fmt.Errorf("graph: %s %s.%s: %w", w.Type, ref.Label, spec.Key, ErrMissingIdentity)
		}
	}
	return nil
}

func absent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
