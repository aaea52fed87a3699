package graph

import (
	"testing"
)

func TestExportRestoreRoundTrip(t *testing.T) {
	g := New("s1", "original question", []string{"a.pdf"})
	g.AddTask(&Task{ID: "T001", Role: RoleCoder, RoleName: "CoderAgent", Description: "write code", Writes: []string{"code"}})
	g.AddEdge(RootID, "T001")
	g.SetGlobal("code", "print(1)")
	g.MarkRunning("T001")
	g.MarkCompleted("T001", map[string]any{"code": "print(1)"}, 0.01, 10, 20)
	g.SetRunStatus(RunCompleted)

	exp := g.Export()
	restored := Restore(exp)

	if restored.Meta().SessionID != "s1" || restored.Meta().Status != RunCompleted {
		t.Errorf("meta mismatch: %+v", restored.Meta())
	}
	if restored.Status("T001") != StatusCompleted {
		t.Errorf("expected T001 completed, got %s", restored.Status("T001"))
	}
	task, ok := restored.Snapshot("T001")
	if !ok || task.Role != RoleCoder {
		t.Errorf("role not re-parsed: %+v", task)
	}
	if v, _ := restored.Global("code"); v != "print(1)" {
		t.Errorf("globals not restored: %v", v)
	}
	preds := restored.Predecessors("T001")
	if len(preds) != 1 || preds[0] != RootID {
		t.Errorf("edges not restored: %v", preds)
	}
}

func TestExportMarshal(t *testing.T) {
	g := New("s1", "q", nil)
	data, err := g.Export().Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty payload")
	}
}
