package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/coretrace/coretrace/pkg/config"
	"github.com/coretrace/coretrace/pkg/config/mocks"
)

func TestConfigManagerFansOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConfigProvider(ctrl)

	var push func(*config.Config) error
	provider.EXPECT().OnConfigChange(gomock.Any()).Do(func(cb func(*config.Config) error) {
		push = cb
	})
	cm := config.NewConfigManager(zap.NewNop(), provider)
	require.NotNil(t, push)
	assert.Nil(t, cm.GetConfig())

	var seen []string
	cm.Subscribe(func(c *config.Config) { seen = append(seen, "a:"+c.Capture.Syscalls) })

	first := &config.Config{Capture: config.CaptureConfig{Syscalls: "all"}}
	require.NoError(t, push(first))
	assert.Same(t, first, cm.GetConfig())

	// late subscribers get the current config right away
	cm.Subscribe(func(c *config.Config) { seen = append(seen, "b:"+c.Capture.Syscalls) })

	require.NoError(t, push(&config.Config{Capture: config.CaptureConfig{Syscalls: "%file"}}))
	assert.Equal(t, []string{"a:all", "b:all", "a:%file", "b:%file"}, seen)
}

func TestConfigManagerSubscribeDuringUpdate(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConfigProvider(ctrl)

	var push func(*config.Config) error
	provider.EXPECT().OnConfigChange(gomock.Any()).Do(func(cb func(*config.Config) error) {
		push = cb
	})
	cm := config.NewConfigManager(zap.NewNop(), provider)

	var seen []string
	cm.Subscribe(func(c *config.Config) {
		seen = append(seen, "a:"+c.Capture.Syscalls)
		if len(seen) == 1 {
			cm.Subscribe(func(c *config.Config) { seen = append(seen, "b:"+c.Capture.Syscalls) })
		}
	})

	require.NoError(t, push(&config.Config{Capture: config.CaptureConfig{Syscalls: "all"}}))
	assert.Equal(t, []string{"a:all", "b:all"}, seen)

	require.NoError(t, push(&config.Config{Capture: config.CaptureConfig{Syscalls: "none"}}))
	assert.Equal(t, []string{"a:all", "b:all", "a:none", "b:none"}, seen)
}

func TestConfigManagerRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConfigProvider(ctrl)
	provider.EXPECT().OnConfigChange(gomock.Any())

	cm := config.NewConfigManager(zap.NewNop(), provider)

	stopped := make(chan struct{})
	gomock.InOrder(
		provider.EXPECT().Start().Return(nil),
		provider.EXPECT().Stop().Do(func() { close(stopped) }),
	)
	provider.EXPECT().Reload().Return(errors.New("no config file"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, cm.Run(ctx))
	assert.EqualError(t, cm.Reload(), "no config file")

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was not stopped")
	}
}

func TestConfigManagerRunStartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConfigProvider(ctrl)
	provider.EXPECT().OnConfigChange(gomock.Any())
	provider.EXPECT().Start().Return(errors.New("bad yaml"))

	cm := config.NewConfigManager(zap.NewNop(), provider)
	assert.EqualError(t, cm.Run(context.Background()), "bad yaml")
}
