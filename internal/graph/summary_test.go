package graph

import (
	"math"
	"testing"
)

func TestSummarizeFinalOutputs(t *testing.T) {
	g := New("s1", "q", nil)
	g.AddTask(&Task{ID: "T001", Role: RoleRetriever, RoleName: "RetrieverAgent", Writes: []string{"raw_data"}})
	g.AddTask(&Task{ID: "T002", Role: RoleFormatter, RoleName: "FormatterAgent", Reads: []string{"raw_data"}, Writes: []string{"final_report"}})

	g.MarkRunning("T001")
	g.MarkCompleted("T001", map[string]any{}, 0.02, 200, 100)
	g.SetGlobal("raw_data", "some rows")

	g.MarkRunning("T002")
	g.MarkCompleted("T002", map[string]any{}, 0.03, 300, 150)
	g.SetGlobal("final_report", "# Report")

	s := g.Summarize()

	// raw_data 被 T002 读取，不算最终产出；final_report 无人读取
	if _, ok := s.FinalOutputs["raw_data"]; ok {
		t.Error("raw_data should not be a final output")
	}
	if s.FinalOutputs["final_report"] != "# Report" {
		t.Errorf("expected final_report in final outputs, got %v", s.FinalOutputs)
	}

	if s.CompletedSteps != 2 || s.TotalSteps != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if math.Abs(s.TotalCost-0.05) > 1e-9 {
		t.Errorf("expected total cost 0.05, got %f", s.TotalCost)
	}
	if s.TotalTokens != 750 {
		t.Errorf("expected 750 total tokens, got %d", s.TotalTokens)
	}
	if s.CostBreakdown["T001"].Role != "RetrieverAgent" {
		t.Errorf("unexpected breakdown: %+v", s.CostBreakdown)
	}
}

func TestSummarizeSkipsRootAndFailedCount(t *testing.T) {
	g := New("s1", "q", nil)
	g.AddTask(&Task{ID: "T001"})
	g.MarkRunning("T001")
	g.MarkFailed("T001", "boom")

	s := g.Summarize()
	if s.TotalSteps != 1 {
		t.Errorf("ROOT should not count, got %d steps", s.TotalSteps)
	}
	if s.FailedSteps != 1 {
		t.Errorf("expected 1 failed, got %d", s.FailedSteps)
	}
}

func TestCompletedCostIgnoresNonCompleted(t *testing.T) {
	g := New("s1", "q", nil)
	g.AddTask(&Task{ID: "T001"})
	g.AddTask(&Task{ID: "T002"})
	g.MarkRunning("T001")
	g.MarkCompleted("T001", nil, 0.10, 0, 0)
	g.MarkRunning("T002")
	g.MarkFailed("T002", "x")
	// 失败任务即使有 cost 字段也不计入
	if got := g.CompletedCost(); got != 0.10 {
		t.Errorf("expected 0.10, got %f", got)
	}
}
