package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
)

// Factory builds a chat model for a runtime endpoint and API key. Either may
// be empty, in which case the configured value applies.
type Factory func(ctx context.Context, endpoint, apiKey string) (model.BaseChatModel, error)

// runtimeModel applies the provider settings saved through the settings API
// to every call: api_endpoint and api_key select the client, api_model the
// model name.
type runtimeModel struct {
	base     model.BaseChatModel
	build    Factory
	settings settings.Store
	log      zerolog.Logger

	mu       sync.Mutex
	builtFor string
	built    model.BaseChatModel
}

// WithRuntimeSettings wraps base so runtime settings take effect without a
// restart. build may be nil, in which case endpoint and key settings are
// ignored. Without any setting, calls go to base unchanged. base may be nil
// when credentials only come from settings; calls then fail with
// ErrProviderNotConfigured until they are saved.
func WithRuntimeSettings(base model.BaseChatModel, store settings.Store, build Factory, logger zerolog.Logger) model.BaseChatModel {
	return &runtimeModel{
		base:     base,
		build:    build,
		settings: store,
		log:      logger.With().Str("component", "ai_model").Logger(),
	}
}

func (m *runtimeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	target, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return target.Generate(ctx, input, m.options(ctx, opts)...)
}

func (m *runtimeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	target, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return target.Stream(ctx, input, m.options(ctx, opts)...)
}

// resolve returns the client for the current endpoint and key. A rebuilt
// client is reused until either setting changes.
func (m *runtimeModel) resolve(ctx context.Context) (model.BaseChatModel, error) {
	if m.build == nil {
		return m.fallback()
	}

	endpoint, err := settings.Value(ctx, m.settings, settings.KeyAPIEndpoint)
	if err != nil {
		m.log.Warn().Err(err).Msg("read api_endpoint setting")
		return m.fallback()
	}
	apiKey, err := settings.Value(ctx, m.settings, settings.KeyAPIKey)
	if err != nil {
		m.log.Warn().Err(err).Msg("read api_key setting")
		return m.fallback()
	}
	if endpoint == "" && apiKey == "" {
		return m.fallback()
	}

	key := endpoint + "\n" + apiKey
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built != nil && m.builtFor == key {
		return m.built, nil
	}

	built, err := m.build(ctx, endpoint, apiKey)
	if err != nil {
		return nil, fmt.Errorf("build chat model from settings: %w", err)
	}
	m.built, m.builtFor = built, key
	m.log.Info().Str("endpoint", endpoint).Msg("chat model rebuilt from runtime settings")
	return built, nil
}

func (m *runtimeModel) fallback() (model.BaseChatModel, error) {
	if m.base == nil {
		return nil, ErrProviderNotConfigured
	}
	return m.base, nil
}

func (m *runtimeModel) options(ctx context.Context, opts []model.Option) []model.Option {
	name, err := settings.Value(ctx, m.settings, settings.KeyAPIModel)
	if err != nil {
		m.log.Warn().Err(err).Msg("read api_model setting")
		return opts
	}
	if name == "" {
		return opts
	}
	return append([]model.Option{model.WithModel(name)}, opts...)
}
