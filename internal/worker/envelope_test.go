package worker

import (
	"testing"

	"apexflow/internal/graph"
)

func TestBuildEnvelopeInstructionFallback(t *testing.T) {
	g := graph.New("s1", "summarize the doc", []string{"doc.pdf"})
	task := &graph.Task{ID: "T001", Role: graph.RoleThinker, Description: "think about it"}
	g.AddTask(task)

	env := BuildEnvelope(g, task, map[string]any{"doc": "text"}, "", nil, nil)
	if env.AgentPrompt != "think about it" {
		t.Errorf("expected description fallback, got %q", env.AgentPrompt)
	}
	if env.OriginalQuery != "summarize the doc" {
		t.Errorf("unexpected original query: %q", env.OriginalQuery)
	}
	if env.SessionContext.SessionID != "s1" {
		t.Errorf("unexpected session context: %+v", env.SessionContext)
	}
	if len(env.SessionContext.FileManifest) != 1 {
		t.Errorf("file manifest not carried: %v", env.SessionContext.FileManifest)
	}
	if env.Inputs["doc"] != "text" {
		t.Errorf("inputs not carried: %v", env.Inputs)
	}
}

func TestBuildEnvelopeExplicitInstruction(t *testing.T) {
	g := graph.New("s1", "q", nil)
	task := &graph.Task{ID: "T001", Role: graph.RoleThinker, Prompt: "base prompt"}
	g.AddTask(task)

	env := BuildEnvelope(g, task, nil, "use the tool result", nil, map[string]any{"tool_result": "42"})
	if env.AgentPrompt != "use the tool result" {
		t.Errorf("explicit instruction should win, got %q", env.AgentPrompt)
	}
	if env.IterationContext["tool_result"] != "42" {
		t.Errorf("iteration context not carried: %v", env.IterationContext)
	}
}

func TestFormatterSeesAllGlobals(t *testing.T) {
	g := graph.New("s1", "q", nil)
	g.SetGlobal("raw", "data")
	g.SetGlobal("analysis", "insight")

	thinker := &graph.Task{ID: "T001", Role: graph.RoleThinker}
	formatter := &graph.Task{ID: "T002", Role: graph.RoleFormatter}
	g.AddTask(thinker)
	g.AddTask(formatter)

	if env := BuildEnvelope(g, thinker, nil, "", nil, nil); env.AllGlobals != nil {
		t.Error("non-formatter should not receive all globals")
	}
	env := BuildEnvelope(g, formatter, nil, "", nil, nil)
	if env.AllGlobals == nil || env.AllGlobals["raw"] != "data" || env.AllGlobals["analysis"] != "insight" {
		t.Errorf("formatter globals missing: %v", env.AllGlobals)
	}
}
