package graph

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreFailNextWriteRollsBack(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if err := s.ExecuteWrite(ctx, func(tx Tx) error {
		return tx.MergeNode(NodeWrite{Label: LabelPage, Key: "https://d/a"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("commit failed")
	s.FailNextWrite(boom)
	err := s.ExecuteWrite(ctx, func(tx Tx) error {
		if err := tx.MergeNode(NodeWrite{Label: LabelPage, Key: "https://d/a", Props: map[string]any{"title": "T"}}); err != nil {
			return err
		}
		if err := tx.MergeNode(NodeWrite{Label: LabelDomain, Key: "d"}); err != nil {
			return err
		}
		return tx.MergeEdge(EdgeWrite{From: NodeRef{LabelPage, "https://d/a"}, Type: RelBelongsToDomain, To: NodeRef{LabelDomain, "d"}})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ExecuteWrite: want %v, got=%v", boom, err)
	}
	pg, _ := s.Node(LabelPage, "https://d/a")
	if _, ok := pg["title"]; ok {
		t.Fatalf("title fill must be rolled back")
	}
	if s.Count(LabelDomain) != 0 || s.EdgeCount() != 0 {
		t.Fatalf("domain/edge must be rolled back")
	}
	if s.Transactions() != 2 {
		t.Fatalf("transactions: want=2 got=%d", s.Transactions())
	}

	// The failure is one-shot.
	if err := s.ExecuteWrite(ctx, func(tx Tx) error { return nil }); err != nil {
		t.Fatalf("ExecuteWrite after failure: %v", err)
	}
}

func TestMemStoreEdgeMatchMissIsNoop(t *testing.T) {
	s := NewMemStore()
	err := s.ExecuteWrite(context.Background(), func(tx Tx) error {
		if err := tx.MergeNode(NodeWrite{Label: LabelPolitician, Key: "https://d/a"}); err != nil {
			return err
		}
		return tx.MergeEdge(EdgeWrite{
			From: NodeRef{LabelPolitician, "https://d/a"},
			Type: RelServedDuring,
			To:   NodeRef{LabelPeriod, "20"},
		})
	})
	if err != nil {
		t.Fatalf("ExecuteWrite: %v", err)
	}
	if s.EdgeCount() != 0 {
		t.Fatalf("edges: want=0 got=%d", s.EdgeCount())
	}
}

func TestMemStoreRejectsUnknownProperty(t *testing.T) {
	s := NewMemStore()
	err := s.ExecuteWrite(context.Background(), func(tx Tx) error {
		return tx.MergeNode(NodeWrite{Label: LabelParty, Key: "SPD", Props: map[string]any{"color": "red"}})
	})
	if err == nil {
		t.Fatalf("ExecuteWrite: expected error for undeclared property")
	}
	if s.Count(LabelParty) != 0 {
		t.Fatalf("party must not be written")
	}
}

func TestMemStoreHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewMemStore().ExecuteWrite(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("ExecuteWrite: want context.Canceled without running fn, got=%v called=%v", err, called)
	}
}
