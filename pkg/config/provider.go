package config

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ConfigProvider is a source of configuration documents.
//
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination ./mocks/provider.go -package mocks . ConfigProvider
type ConfigProvider interface {
	// Start delivers the first configuration and begins watching.
	Start() error
	Stop()
	// OnConfigChange sets the function each new configuration is handed to.
	OnConfigChange(callback func(*Config) error)
	// Reload re-reads the source and delivers the result.
	Reload() error
}

// ConfigManager keeps the current configuration and hands every update
// to its subscribers, in the order they subscribed, on the delivering
// goroutine.
type ConfigManager struct {
	logger   *zap.Logger
	provider ConfigProvider
	current  atomic.Pointer[Config]

	mu          sync.Mutex
	subscribers []func(*Config)
	updates     int
}

func NewConfigManager(logger *zap.Logger, provider ConfigProvider) *ConfigManager {
	cm := &ConfigManager{
		logger:   logger,
		provider: provider,
	}
	provider.OnConfigChange(func(cfg *Config) error {
		cm.update(cfg)
		return nil
	})
	return cm
}

// Subscribe adds callback and, when a configuration is already loaded,
// calls it with that configuration before returning.
func (cm *ConfigManager) Subscribe(callback func(*Config)) {
	cm.mu.Lock()
	cm.subscribers = append(cm.subscribers, callback)
	cm.mu.Unlock()

	if cfg := cm.current.Load(); cfg != nil {
		callback(cfg)
	}
}

// GetConfig returns the current configuration, nil before the first load.
func (cm *ConfigManager) GetConfig() *Config {
	return cm.current.Load()
}

func (cm *ConfigManager) update(cfg *Config) {
	cm.mu.Lock()
	cm.current.Store(cfg)
	cm.updates++
	subscribers := slices.Clone(cm.subscribers)
	updates := cm.updates
	cm.mu.Unlock()

	cm.logger.Info("configuration updated",
		zap.Int("update", updates),
		zap.Int("subscribers", len(subscribers)))
	for _, sub := range subscribers {
		sub(cfg)
	}
}

func (cm *ConfigManager) Reload() error {
	return cm.provider.Reload()
}

// Run starts the provider and stops it once ctx is done. The first
// configuration has been delivered when Run returns without error.
func (cm *ConfigManager) Run(ctx context.Context) error {
	if err := cm.provider.Start(); err != nil {
		return err
	}
	context.AfterFunc(ctx, cm.provider.Stop)
	return nil
}
