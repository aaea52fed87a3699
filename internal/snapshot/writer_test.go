package snapshot

import (
	"context"
	"testing"
	"time"

	"apexflow/internal/graph"
)

func TestWriterPersistsEnqueued(t *testing.T) {
	s := NewMemoryStore()
	w := NewWriter(s, 8, nil)

	g := graph.New("s1", "query", nil)
	w.Enqueue(g.Export())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exp, err := s.Load(context.Background(), "s1")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if exp != nil {
			w.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot never persisted")
}

func TestWriterCloseFlushesQueue(t *testing.T) {
	s := NewMemoryStore()
	w := NewWriter(s, 8, nil)

	for i := 0; i < 3; i++ {
		g := graph.New("s1", "query", nil)
		g.SetGlobal("round", i)
		w.Enqueue(g.Export())
	}
	w.Close()

	exp, err := s.Load(context.Background(), "s1")
	if err != nil || exp == nil {
		t.Fatalf("load after close failed: %v", err)
	}
	if exp.Globals["round"] != float64(2) {
		t.Errorf("expected last snapshot flushed, got %v", exp.Globals)
	}
}
