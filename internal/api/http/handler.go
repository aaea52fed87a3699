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

package http

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	appsvc "apexflow/internal/app"
	"apexflow/internal/engine"
	pkgerrors "apexflow/pkg/errors"
	"apexflow/pkg/log"
	"apexflow/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	runs   *appsvc.RunManager
	logger *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(runs *appsvc.RunManager, logger *log.Logger) *Handler {
	return &Handler{runs: runs, logger: logger}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "apexflow-api",
	})
}

// StartRun 发起一次 run，立即返回 session id
func (h *Handler) StartRun(ctx context.Context, c *app.RequestContext) {
	var request struct {
		Query         string         `json:"query"`
		FileManifest  []string       `json:"file_manifest"`
		UploadedFiles []string       `json:"uploaded_files"`
		Globals       map[string]any `json:"globals"`
	}
	if err := c.BindAndValidate(&request); err != nil || request.Query == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求参数错误，query 必填"})
		return
	}

	sessionID := h.runs.Start(engine.RunOptions{
		Query:         request.Query,
		FileManifest:  request.FileManifest,
		UploadedFiles: request.UploadedFiles,
		Globals:       request.Globals,
	})
	h.logger.Info("run 已启动", "session_id", sessionID)

	c.JSON(consts.StatusOK, utils.H{
		"status":     "success",
		"session_id": sessionID,
	})
}

// GetRun 查询 run 状态与汇总
func (h *Handler) GetRun(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")

	g, err := h.runs.Graph(ctx, id)
	if err != nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "会话不存在"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"session_id": id,
		"status":     g.Meta().Status,
		"summary":    g.Summarize(),
	})
}

// StopRun 停止 run
func (h *Handler) StopRun(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")

	if err := h.runs.Stop(id); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "会话不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"status":  "success",
		"message": "停止请求已下发",
	})
}

// AnswerRun 回答挂起任务的澄清问题
func (h *Handler) AnswerRun(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")

	var request struct {
		StepID string `json:"step_id"`
		Answer string `json:"answer"`
	}
	if err := c.BindAndValidate(&request); err != nil || request.StepID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求参数错误，step_id 必填"})
		return
	}

	if err := h.runs.Answer(id, request.StepID, request.Answer); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"status":  "success",
		"message": "回答已投递",
	})
}

// RunEvents 返回会话近期事件
func (h *Handler) RunEvents(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	events := h.runs.Events(id)

	c.JSON(consts.StatusOK, utils.H{
		"session_id": id,
		"events":     events,
		"total":      len(events),
	})
}

// Metrics Prometheus 指标导出
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
