// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
)

// Store Secret 存储接口；用于解析 LLM Provider 的 API Key
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string `mapstructure:"provider"` // vault | env
	// Vault 相关配置，Provider=vault 时生效
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// NewStore 创建 Secret Store；未配置时默认 env
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Address,
			Token:      config.Token,
			PathPrefix: config.PathPrefix,
		})
	default:
		return NewEnvStore(), nil
	}
}
