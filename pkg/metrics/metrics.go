package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Runner 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		StepDuration, StepTotal, StepRetryTotal,
		ToolDuration, LLMTokensTotal,
		RunCost, RunTotal,
	)
}

// StepDuration 任务步骤执行耗时（秒）
var StepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "apexflow_step_duration_seconds",
		Help:    "任务步骤执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"role"},
)

// StepTotal 步骤总数（按终态）
var StepTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "apexflow_step_total",
		Help: "步骤总数（按终态）",
	},
	[]string{"status"}, // completed | failed | skipped | stopped
)

// StepRetryTotal 步骤重新入队重试次数
var StepRetryTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "apexflow_step_retry_total",
		Help: "步骤重新入队重试次数",
	},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "apexflow_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "apexflow_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// RunCost 单条 run 的累计花费（美元）
var RunCost = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "apexflow_run_cost_usd",
		Help: "单条 run 的累计花费（美元）",
	},
	[]string{"session_id"},
)

// RunTotal run 总数（按终态）
var RunTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "apexflow_run_total",
		Help: "run 总数（按终态）",
	},
	[]string{"status"}, // completed | failed | stopped | cost_exceeded
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
