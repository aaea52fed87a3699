package llm

import (
	"context"
)

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// Usage 单次调用的真实 token 用量（计费依据）
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Client LLM 客户端接口
type Client interface {
	// ChatWithContext 使用上下文聊天，返回回复与 token 用量
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, Usage, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}
