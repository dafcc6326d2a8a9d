package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type edgeKey struct {
	From NodeRef
	Type RelType
	To   NodeRef
}

func (k edgeKey) String() string {
	return k.From.String() + " -" + string(k.Type) + "-> " + k.To.String()
}

// MemStore is an in-process Store with the same merge semantics as Neo4jStore. It backs
// dry runs and tests.
type MemStore struct {
	mu       sync.Mutex
	nodes    map[NodeRef]map[string]any
	edges    map[edgeKey]struct{}
	txs      int
	failNext error
}

func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[NodeRef]map[string]any),
		edges: make(map[edgeKey]struct{}),
	}
}

// FailNextWrite makes the next ExecuteWrite run its callback and then fail with err, as a
// commit failure would. The transaction's writes are rolled back.
func (s *MemStore) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs++
	tx := &memTx{s: s}
	err := fn(tx)
	if err == nil {
		tx.applyEdges()
	}
	if err == nil && s.failNext != nil {
		err, s.failNext = s.failNext, nil
	}
	if err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Transactions counts ExecuteWrite calls, committed or not.
func (s *MemStore) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

// Node returns a copy of the node's properties, key property included.
func (s *MemStore) Node(label Label, key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.nodes[NodeRef{label, key}]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, true
}

func (s *MemStore) HasEdge(from NodeRef, rel RelType, to NodeRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edges[edgeKey{from, rel, to}]
	return ok
}

// Count returns the number of nodes with the label.
func (s *MemStore) Count(label Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ref := range s.nodes {
		if ref.Label == label {
			n++
		}
	}
	return n
}

func (s *MemStore) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

// Snapshot is a comparable picture of the whole graph.
type Snapshot struct {
	Nodes map[string]map[string]any
	Edges []string
}

func (s *MemStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Nodes: make(map[string]map[string]any, len(s.nodes))}
	for ref, props := range s.nodes {
		cp := make(map[string]any, len(props))
		for k, v := range props {
			cp[k] = v
		}
		out.Nodes[ref.String()] = cp
	}
	for k := range s.edges {
		out.Edges = append(out.Edges, k.String())
	}
	sort.Strings(out.Edges)
	return out
}

type undoKind int

const (
	undoNode undoKind = iota
	undoProp
	undoEdge
)

type undo struct {
	kind undoKind
	ref  NodeRef
	prop string
	edge edgeKey
}

// memTx applies node merges immediately and edge merges at commit, matching the
// nodes-then-edges order Neo4jStore sends statements in.
type memTx struct {
	s       *MemStore
	undo    []undo
	pending []edgeKey
}

func (t *memTx) MergeNode(w NodeWrite) error {
	spec, err := checkNode(w)
	if err != nil {
		return err
	}
	ref := NodeRef{w.Label, w.Key}
	props, exists := t.s.nodes[ref]
	if !exists {
		props = map[string]any{spec.Key: w.Key}
		t.s.nodes[ref] = props
		t.undo = append(t.undo, undo{kind: undoNode, ref: ref})
		for name, v := range w.Props {
			if !absent(v) {
				props[name] = v
			}
		}
		return nil
	}
	for name, v := range w.Props {
		if absent(v) {
			continue
		}
		p, _ := spec.prop(name)
		if p.Policy != FillIfAbsent {
			continue
		}
		if cur, ok := props[name]; ok && !absent(cur) {
			continue
		}
		props[name] = v
		t.undo = append(t.undo, undo{kind: undoProp, ref: ref, prop: name})
	}
	return nil
}

func (t *memTx) MergeEdge(w EdgeWrite) error {
	if err := checkEdge(w); err != nil {
		return err
	}
	t.pending = append(t.pending, edgeKey{w.From, w.Type, w.To})
	return nil
}

func (t *memTx) applyEdges() {
	for _, k := range t.pending {
		if _, ok := t.s.nodes[k.From]; !ok {
			continue
		}
		if _, ok := t.s.nodes[k.To]; !ok {
			continue
		}
		if _, ok := t.s.edges[k]; ok {
			continue
		}
		t.s.edges[k] = struct{}{}
		t.undo = append(t.undo, undo{kind: undoEdge, edge: k})
	}
	t.pending = nil
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		u := t.undo[i]
		switch u.kind {
		case undoNode:
			delete(t.s.nodes, u.ref)
		case undoProp:
			if props, ok := t.s.nodes[u.ref]; ok {
				delete(props, u.prop)
			}
		case undoEdge:
			delete(t.s.edges, u.edge)
		default:
			panic(fmt.Sprintf("graph: unknown undo kind %d", u.kind))
		}
	}
	t.undo = nil
}
