package engine

import (
	"testing"

	"apexflow/internal/graph"
)

func linearGraph() *graph.Graph {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "T001"})
	g.AddTask(&graph.Task{ID: "T002"})
	g.AddTask(&graph.Task{ID: "T003"})
	g.AddEdge(graph.RootID, "T001")
	g.AddEdge("T001", "T002")
	g.AddEdge("T002", "T003")
	return g
}

func TestReadyFrontierRespectsDependencies(t *testing.T) {
	g := linearGraph()
	ready := ReadyFrontier(g)
	if len(ready) != 1 || ready[0] != "T001" {
		t.Errorf("expected [T001], got %v", ready)
	}

	g.MarkRunning("T001")
	g.MarkCompleted("T001", nil, 0, 0, 0)
	ready = ReadyFrontier(g)
	if len(ready) != 1 || ready[0] != "T002" {
		t.Errorf("expected [T002], got %v", ready)
	}
}

func TestReadyFrontierParallelBranches(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "A"})
	g.AddTask(&graph.Task{ID: "B"})
	g.AddTask(&graph.Task{ID: "C"})
	g.AddEdge(graph.RootID, "A")
	g.AddEdge(graph.RootID, "B")
	g.AddEdge("A", "C")
	g.AddEdge("B", "C")

	ready := ReadyFrontier(g)
	if len(ready) != 2 || ready[0] != "A" || ready[1] != "B" {
		t.Errorf("expected [A B] in insertion order, got %v", ready)
	}

	// 汇合点要等两个前驱都完成
	g.MarkRunning("A")
	g.MarkCompleted("A", nil, 0, 0, 0)
	if ready := ReadyFrontier(g); len(ready) != 1 || ready[0] != "B" {
		t.Errorf("C should not be ready yet, got %v", ready)
	}
	g.MarkRunning("B")
	g.MarkCompleted("B", nil, 0, 0, 0)
	if ready := ReadyFrontier(g); len(ready) != 1 || ready[0] != "C" {
		t.Errorf("expected [C], got %v", ready)
	}
}

func TestReadyFrontierNoPredecessorIsReady(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "orphan"})
	ready := ReadyFrontier(g)
	if len(ready) != 1 || ready[0] != "orphan" {
		t.Errorf("expected orphan ready, got %v", ready)
	}
}

func TestSkipCascadePropagates(t *testing.T) {
	g := linearGraph()
	g.MarkRunning("T001")
	g.MarkFailed("T001", "boom")

	for SkipCascade(g) {
	}
	if g.Status("T002") != graph.StatusSkipped {
		t.Errorf("expected T002 skipped, got %s", g.Status("T002"))
	}
	if g.Status("T003") != graph.StatusSkipped {
		t.Errorf("expected T003 skipped, got %s", g.Status("T003"))
	}
	if SkipCascade(g) {
		t.Error("cascade should converge")
	}
}

func TestSkipCascadeOnCostExceeded(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "A"})
	g.AddTask(&graph.Task{ID: "B"})
	g.AddEdge("A", "B")
	g.SetStatus("A", graph.StatusCostExceeded)

	if !SkipCascade(g) {
		t.Fatal("expected cascade to mark B")
	}
	if g.Status("B") != graph.StatusSkipped {
		t.Errorf("expected B skipped, got %s", g.Status("B"))
	}
}

func TestTerminalPredicates(t *testing.T) {
	g := linearGraph()
	if AllTerminal(g) {
		t.Error("pending tasks should not be terminal")
	}
	if AnyFailed(g) {
		t.Error("nothing failed yet")
	}

	g.MarkRunning("T001")
	if !AnyRunningOrWaiting(g) {
		t.Error("T001 is running")
	}
	g.MarkFailed("T001", "x")
	for SkipCascade(g) {
	}
	if !AllTerminal(g) {
		t.Error("all tasks should be terminal after cascade")
	}
	if !AnyFailed(g) {
		t.Error("T001 failed")
	}
}
