package tool

import (
	"context"
)

// Schema 表示工具的 JSON Schema（供 LLM function-calling 使用）
type Schema struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
}

// SchemaProperty 表示 Schema 中单个属性的描述
type SchemaProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// CallContext 单次工具调用的上下文（审计与限流用）
type CallContext struct {
	SessionID string
	StepID    string
}

// Tool 执行引擎使用的工具接口
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, input map[string]any) (string, error)
}
