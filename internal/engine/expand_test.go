package engine

import (
	"testing"

	"apexflow/internal/graph"
)

func planOutput(confidence float64, notes []any, next string) map[string]any {
	out := map[string]any{
		"plan_graph": map[string]any{
			"nodes": []any{
				map[string]any{"id": "T001", "agent": "RetrieverAgent", "description": "fetch data", "writes": []any{"raw"}},
				map[string]any{"id": "T002", "agent": "FormatterAgent", "description": "format", "reads": []any{"raw"}, "writes": []any{"report"}},
			},
			"edges": []any{
				map[string]any{"source": "ROOT", "target": "T001"},
				map[string]any{"source": "T001", "target": "T002"},
			},
		},
	}
	if confidence > 0 {
		out["interpretation_confidence"] = confidence
	}
	if notes != nil {
		out["ambiguity_notes"] = notes
	}
	if next != "" {
		out["next_step_id"] = next
	}
	return out
}

func TestParsePlanMissingGraphFails(t *testing.T) {
	_, err := ParsePlan(map[string]any{"output": "some text"})
	if err == nil {
		t.Fatal("expected error when plan_graph missing")
	}
}

func TestParsePlanDefaults(t *testing.T) {
	pr, err := ParsePlan(planOutput(0, nil, ""))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pr.Confidence != 1.0 {
		t.Errorf("default confidence should be 1.0, got %f", pr.Confidence)
	}
	if pr.NextStepID != "T001" {
		t.Errorf("default next step should be T001, got %s", pr.NextStepID)
	}
	if len(pr.Plan.Nodes) != 2 || len(pr.Plan.Edges) != 2 {
		t.Errorf("unexpected plan: %+v", pr.Plan)
	}
}

func TestParsePlanFromToEdgeSyntax(t *testing.T) {
	out := map[string]any{
		"plan_graph": map[string]any{
			"nodes": []any{map[string]any{"id": "T001", "agent": "thinker"}},
			"edges": []any{map[string]any{"from": "ROOT", "to": "T001"}},
		},
	}
	pr, err := ParsePlan(out)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	source, target := pr.Plan.Edges[0].resolve()
	if source != "ROOT" || target != "T001" {
		t.Errorf("resolve() = %s, %s", source, target)
	}
}

func TestMaybeInjectClarificationLowConfidence(t *testing.T) {
	pr, _ := ParsePlan(planOutput(0.4, []any{"which quarter?"}, "T001"))
	if !MaybeInjectClarification(pr, testLogger(t)) {
		t.Fatal("expected injection")
	}
	if pr.NextStepID != "T000_AutoClarify" {
		t.Errorf("next step should be the clarifier, got %s", pr.NextStepID)
	}
	first := pr.Plan.Nodes[0]
	if first.ID != "T000_AutoClarify" || graph.ParseRole(first.Agent) != graph.RoleClarifier {
		t.Errorf("clarifier not prepended: %+v", first)
	}
	if len(first.Writes) != 1 || first.Writes[0] != "user_clarification_T000" {
		t.Errorf("unexpected clarifier writes: %v", first.Writes)
	}
	// 原首任务要读到澄清结果
	for _, n := range pr.Plan.Nodes {
		if n.ID == "T001" && !containsString(n.Reads, "user_clarification_T000") {
			t.Errorf("T001 reads missing clarification key: %v", n.Reads)
		}
	}
	source, target := pr.Plan.Edges[0].resolve()
	if source != "T000_AutoClarify" || target != "T001" {
		t.Errorf("clarifier edge wrong: %s -> %s", source, target)
	}
}

func TestMaybeInjectClarificationSkipsHighConfidence(t *testing.T) {
	pr, _ := ParsePlan(planOutput(0.9, []any{"minor note"}, "T001"))
	if MaybeInjectClarification(pr, testLogger(t)) {
		t.Error("high confidence should not inject")
	}
}

func TestMaybeInjectClarificationNeedsNotes(t *testing.T) {
	pr, _ := ParsePlan(planOutput(0.3, nil, "T001"))
	if MaybeInjectClarification(pr, testLogger(t)) {
		t.Error("no ambiguity notes, nothing to ask about")
	}
}

func TestMaybeInjectClarificationSkipsWhenPlannerProvidedOne(t *testing.T) {
	out := planOutput(0.3, []any{"unclear"}, "T001")
	pg := out["plan_graph"].(map[string]any)
	pg["nodes"] = append(pg["nodes"].([]any), map[string]any{
		"id": "T003", "agent": "ClarificationAgent", "writes": []any{"answer"},
	})
	pr, _ := ParsePlan(out)
	if MaybeInjectClarification(pr, testLogger(t)) {
		t.Error("planner already included a clarifier")
	}
}

func TestMergePlanRedirectsRootEdges(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: BootstrapID, Role: graph.RolePlanner, Status: graph.StatusCompleted})
	pr, _ := ParsePlan(planOutput(0, nil, ""))

	MergePlan(g, pr.Plan, testLogger(t))

	preds := g.Predecessors("T001")
	if len(preds) != 1 || preds[0] != BootstrapID {
		t.Errorf("ROOT edge should point at bootstrap node, got %v", preds)
	}
}

func TestMergePlanIdempotentRemerge(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: BootstrapID, Role: graph.RolePlanner, Status: graph.StatusCompleted})
	pr, _ := ParsePlan(planOutput(0, nil, ""))

	MergePlan(g, pr.Plan, testLogger(t))
	g.MarkRunning("T001")
	g.MarkCompleted("T001", map[string]any{"raw": "rows"}, 0.01, 10, 10)

	// 重规划后再次并入：已完成任务不得被重置
	MergePlan(g, pr.Plan, testLogger(t))
	if g.Status("T001") != graph.StatusCompleted {
		t.Errorf("completed task reset by re-merge: %s", g.Status("T001"))
	}
	if g.Status("T002") != graph.StatusPending {
		t.Errorf("pending task should stay pending: %s", g.Status("T002"))
	}
	if len(g.Edges()) != 2 {
		t.Errorf("edges should deduplicate, got %d", len(g.Edges()))
	}
}

func TestMergePlanDropsMalformedEdges(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: BootstrapID, Role: graph.RolePlanner, Status: graph.StatusCompleted})
	plan := &Plan{
		Nodes: []PlanNode{{ID: "T001", Agent: "thinker"}},
		Edges: []PlanEdge{{Source: "", Target: "T001"}},
	}
	MergePlan(g, plan, testLogger(t))
	// 畸形边丢弃后 T001 成孤儿，自动挂到引导节点
	preds := g.Predecessors("T001")
	if len(preds) != 1 || preds[0] != BootstrapID {
		t.Errorf("orphan not wired to bootstrap: %v", preds)
	}
}

func TestMergePlanClarifierSafetyNet(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: BootstrapID, Role: graph.RolePlanner, Status: graph.StatusCompleted})
	plan := &Plan{
		Nodes: []PlanNode{
			{ID: "C1", Agent: "ClarificationAgent", Writes: []string{"user_answer"}},
			{ID: "T001", Agent: "thinker", Reads: []string{}},
		},
		Edges: []PlanEdge{{Source: "C1", Target: "T001"}},
	}
	MergePlan(g, plan, testLogger(t))

	task, _ := g.Snapshot("T001")
	if !containsString(task.Reads, "user_answer") {
		t.Errorf("successor should read clarifier output, got %v", task.Reads)
	}
}

func TestShouldReplan(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "C1", Role: graph.RoleClarifier})
	g.MarkRunning("C1")
	g.MarkCompleted("C1", map[string]any{"user_response": "Q3"}, 0, 0, 0)

	if !ShouldReplan(g) {
		t.Error("completed clarifier with no successors should trigger replanning")
	}

	// 有后继时说明澄清结果已被消费
	g.AddTask(&graph.Task{ID: "T001", Role: graph.RoleThinker})
	g.AddEdge("C1", "T001")
	g.MarkRunning("T001")
	g.MarkCompleted("T001", nil, 0, 0, 0)
	if ShouldReplan(g) {
		t.Error("clarifier with successors should not trigger replanning")
	}
}

func TestShouldReplanRequiresAllTerminal(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.AddTask(&graph.Task{ID: "C1", Role: graph.RoleClarifier})
	g.AddTask(&graph.Task{ID: "T009", Role: graph.RoleThinker})
	g.MarkRunning("C1")
	g.MarkCompleted("C1", nil, 0, 0, 0)
	// T009 仍 pending
	if ShouldReplan(g) {
		t.Error("replanning must wait until every task is terminal")
	}
}
