package snapshot

import (
	"context"
	"testing"

	"apexflow/internal/graph"
)

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore()
	g := graph.New("s1", "query", nil)
	g.AddTask(&graph.Task{ID: "T001", RoleName: "ThinkerAgent"})
	g.SetGlobal("k", "v")

	if err := s.Save(context.Background(), g.Export()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	exp, err := s.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if exp == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if exp.Meta.SessionID != "s1" || len(exp.Nodes) != 2 {
		t.Errorf("unexpected snapshot: %+v", exp.Meta)
	}
	if exp.Globals["k"] != "v" {
		t.Errorf("globals not persisted: %v", exp.Globals)
	}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore()
	exp, err := s.Load(context.Background(), "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp != nil {
		t.Errorf("expected nil for missing session, got %+v", exp)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	g := graph.New("s1", "query", nil)
	if err := s.Save(context.Background(), g.Export()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	g.SetGlobal("answer", 42)
	if err := s.Save(context.Background(), g.Export()); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	exp, err := s.Load(context.Background(), "s1")
	if err != nil || exp == nil {
		t.Fatalf("load failed: %v", err)
	}
	if exp.Globals["answer"] != float64(42) {
		t.Errorf("expected latest snapshot, got %v", exp.Globals)
	}
}
