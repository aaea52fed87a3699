// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`     // Vault server address (e.g., http://vault:8200)
	Token      string `mapstructure:"token"`       // Vault token
	PathPrefix string `mapstructure:"path_prefix"` // Secret path prefix (e.g., "secret")
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
	mu         sync.RWMutex
	transient  map[string]string // 刚 Set 过的值走本地缓存，避免读放大
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if config.Token != "" {
		client.SetToken(config.Token)
	}

	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = config.PathPrefix
	}

	return &vaultStore{
		client:     client,
		pathPrefix: prefix,
		transient:  make(map[string]string),
	}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.transient[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	secretPath := fmt.Sprintf("%s/%s", v.pathPrefix, key)
	secret, err := v.client.Logical().Read(secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}

	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}

	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}

	for _, val := range secret.Data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}

	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	secretPath := fmt.Sprintf("%s/%s", v.pathPrefix, key)

	data := map[string]interface{}{
		"value": value,
	}

	if _, err := v.client.Logical().Write(secretPath, data); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}

	v.mu.Lock()
	v.transient[key] = value
	v.mu.Unlock()

	return nil
}
