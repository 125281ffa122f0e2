package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// LocalConfigProvider serves a YAML file and re-reads it on SIGHUP. A
// SIGHUP that finds the file unchanged notifies nobody.
type LocalConfigProvider struct {
	logger     *zap.Logger
	fs         afero.Fs
	configPath string
	overrides  []func(*Config)

	mu       sync.Mutex
	callback func(*Config) error
	loaded   uint64
	cancel   context.CancelFunc
	wg       conc.WaitGroup
}

// NewLocalConfigProvider creates a provider for the config file at
// configPath. Overrides run on every load, before validation.
func NewLocalConfigProvider(logger *zap.Logger, fs afero.Fs, configPath string, overrides ...func(*Config)) *LocalConfigProvider {
	return &LocalConfigProvider{
		logger:     logger.With(zap.String("path", configPath)),
		fs:         fs,
		configPath: configPath,
		overrides:  overrides,
	}
}

func (p *LocalConfigProvider) Start() error {
	p.mu.Lock()
	registered := p.callback != nil
	p.mu.Unlock()
	if !registered {
		return errors.New("no callback registered for config changes")
	}

	if err := p.load(true); err != nil {
		return fmt.Errorf("initial config load failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Go(func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				p.logger.Info("SIGHUP received, reloading configuration")
				if err := p.load(false); err != nil {
					p.logger.Error("failed to reload config after SIGHUP", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	})
	return nil
}

// Stop ends the SIGHUP watch and waits for an in-flight reload.
func (p *LocalConfigProvider) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

func (p *LocalConfigProvider) OnConfigChange(callback func(*Config) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = callback
}

// Reload re-reads the file and notifies even when it is unchanged.
func (p *LocalConfigProvider) Reload() error {
	return p.load(true)
}

func (p *LocalConfigProvider) load(force bool) error {
	data, err := afero.ReadFile(p.fs, p.configPath)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	sum := xxhash.Sum64(data)
	p.mu.Lock()
	unchanged := sum == p.loaded
	callback := p.callback
	p.mu.Unlock()
	if unchanged && !force {
		p.logger.Info("configuration file unchanged")
		return nil
	}

	conf, err := parse(data, p.overrides)
	if err != nil {
		return err
	}

	if callback != nil {
		if err := callback(conf); err != nil {
			return fmt.Errorf("config callback failed: %w", err)
		}
	}

	p.mu.Lock()
	p.loaded = sum
	p.mu.Unlock()
	return nil
}

// parse decodes, overrides and validates one configuration document.
func parse(data []byte, overrides []func(*Config)) (*Config, error) {
	conf, err := UnmarshalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	for _, o := range overrides {
		o(conf)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}
