package config

import (
	_ "embed"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

//go:embed default.yaml
var defaultConfigBytes []byte

// DefaultConfigProvider serves the embedded default configuration. It
// never changes, so Reload only re-delivers it.
type DefaultConfigProvider struct {
	logger    *zap.Logger
	overrides []func(*Config)

	mu       sync.Mutex
	cfg      *Config
	callback func(*Config) error
}

// NewDefaultConfigProvider creates a provider for the embedded defaults.
// Overrides run once, before validation.
func NewDefaultConfigProvider(logger *zap.Logger, overrides ...func(*Config)) *DefaultConfigProvider {
	return &DefaultConfigProvider{
		logger:    logger,
		overrides: overrides,
	}
}

// Default returns a validated copy of the embedded configuration.
func Default() (*Config, error) {
	cfg, err := parse(defaultConfigBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	return cfg, nil
}

func (p *DefaultConfigProvider) Start() error {
	cfg, err := parse(defaultConfigBytes, p.overrides)
	if err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	p.logger.Debug("using embedded default configuration")

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return p.deliver()
}

func (p *DefaultConfigProvider) Stop() {}

func (p *DefaultConfigProvider) OnConfigChange(callback func(*Config) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = callback
}

func (p *DefaultConfigProvider) Reload() error {
	return p.deliver()
}

func (p *DefaultConfigProvider) deliver() error {
	p.mu.Lock()
	cfg, callback := p.cfg, p.callback
	p.mu.Unlock()
	if cfg == nil || callback == nil {
		return nil
	}
	return callback(cfg)
}
