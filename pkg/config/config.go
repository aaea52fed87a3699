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

package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"apexflow/pkg/log"
	"apexflow/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Model      ModelConfig      `mapstructure:"model"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
	Log        log.Config       `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// AgentConfig 执行引擎配置：预算、重试、turn 上限与每角色模型映射
type AgentConfig struct {
	MaxCostPerRun    float64 `mapstructure:"max_cost_per_run"` // 预算上限（美元），<=0 默认 0.50
	WarnAtCost       float64 `mapstructure:"warn_at_cost"`     // 预算预警阈值，<=0 默认 0.25
	MaxStepRetries   *int    `mapstructure:"max_step_retries"` // 步骤级重新入队上限（不含首次），未配置默认 2，0 表示不重试
	MaxTurns         int     `mapstructure:"max_turns"`        // 单步骤 ReAct turn 上限，<=0 默认 15
	RetryMax         int     `mapstructure:"retry_max"`        // worker 调用瞬时失败重试次数，<=0 默认 3
	RetryBackoff     string  `mapstructure:"retry_backoff"`    // 首次重试等待，如 "1s"，空则默认 1s
	PlanningStrategy string  `mapstructure:"planning_strategy"`
	ModelProvider    string  `mapstructure:"model_provider"` // 默认 Provider
	DefaultModel     string  `mapstructure:"default_model"`  // 默认模型

	// Overrides 每角色模型覆盖，键为角色名（planner/coder/...）
	Overrides map[string]RoleOverride `mapstructure:"overrides"`
}

// RoleOverride 单个角色的模型覆盖
type RoleOverride struct {
	ModelProvider string `mapstructure:"model_provider"`
	Model         string `mapstructure:"model"`
}

// StepRetries 步骤级重新入队上限；未配置默认 2，显式配置 0 表示不重新入队
func (a AgentConfig) StepRetries() int {
	if a.MaxStepRetries == nil {
		return 2
	}
	if *a.MaxStepRetries < 0 {
		return 0
	}
	return *a.MaxStepRetries
}

// RetryBackoffDuration 解析重试等待时间，非法或为空时返回 1s
func (a AgentConfig) RetryBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(a.RetryBackoff); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// ModelConfig 模型配置
type ModelConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	RPM     int    `mapstructure:"rpm"` // 每分钟请求上限，<=0 不限速
}

// SnapshotConfig 图快照存储配置
type SnapshotConfig struct {
	Type      string `mapstructure:"type"`       // memory | postgres
	DSN       string `mapstructure:"dsn"`        // Postgres 连接串，type=postgres 时必填
	CacheAddr string `mapstructure:"cache_addr"` // Redis 地址，空则不启用热缓存
	CacheDB   int    `mapstructure:"cache_db"`
	QueueSize int    `mapstructure:"queue_size"` // 后台写队列长度，<=0 默认 64
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)

	return &config, nil
}

// replaceEnvVars 替换配置中 ${VAR} 形式的模型 API Key
func replaceEnvVars(config *Config) {
	for provider, providerConfig := range config.Model.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.Providers[provider] = providerConfig
			}
		}
	}
}

// ResolveSecrets 用 Secret Store 解析 vault: 前缀的 API Key；env 变量形式已在 Load 时处理
func (c *Config) ResolveSecrets(store secrets.Store) error {
	for provider, providerConfig := range c.Model.Providers {
		if key, ok := strings.CutPrefix(providerConfig.APIKey, "vault:"); ok {
			val, err := store.Get(context.Background(), key)
			if err != nil {
				return fmt.Errorf("解析 provider %s 的 API Key 失败: %w", provider, err)
			}
			providerConfig.APIKey = val
			c.Model.Providers[provider] = providerConfig
		}
	}
	return nil
}

// LoadAPIConfig 加载 API 配置（仅 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadAPIConfigWithModel 加载 API 配置并合并 model 配置
func LoadAPIConfigWithModel() (*Config, error) {
	cfg, err := LoadConfig("configs/api.yaml")
	if err != nil {
		return nil, err
	}
	modelCfg, err := LoadConfig("configs/model.yaml")
	if err == nil {
		cfg.Model = modelCfg.Model
	}
	return cfg, nil
}
