// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"apexflow/internal/tool"
)

// FetchTool 实现 web.fetch：抓取 URL 内容供 Retriever 类任务使用
type FetchTool struct {
	client *resty.Client
}

// NewFetchTool 创建 web.fetch 工具
func NewFetchTool() *FetchTool {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	return &FetchTool{client: client}
}

// Name 实现 tool.Tool
func (t *FetchTool) Name() string { return "web.fetch" }

// Description 实现 tool.Tool
func (t *FetchTool) Description() string {
	return "抓取指定 URL 的文本内容。传入 url，可选 max_bytes 截断长度。"
}

// Schema 实现 tool.Tool
func (t *FetchTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "抓取参数",
		Properties: map[string]tool.SchemaProperty{
			"url":       {Type: "string", Description: "要抓取的 URL"},
			"max_bytes": {Type: "integer", Description: "返回内容截断长度（可选，默认 65536）"},
		},
		Required: []string{"url"},
	}
}

// Execute 实现 tool.Tool
func (t *FetchTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	urlStr, _ := input["url"].(string)
	if urlStr == "" {
		return "", errors.New("url 不能为空")
	}
	maxBytes := 65536
	if n, ok := input["max_bytes"].(int); ok && n > 0 {
		maxBytes = n
	}
	resp, err := t.client.R().SetContext(ctx).Get(urlStr)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", errors.New("HTTP " + resp.Status())
	}
	body := resp.String()
	if len(body) > maxBytes {
		body = body[:maxBytes]
	}
	return body, nil
}
