package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
)

// ErrProviderNotConfigured is returned when no endpoint or key is known.
var ErrProviderNotConfigured = errors.New("api endpoint and key must be configured first")

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Catalog lists the models an OpenAI-compatible endpoint offers. The endpoint
// and key saved in settings win over the configured defaults.
type Catalog struct {
	httpClient      *resty.Client
	settings        settings.Store
	defaultEndpoint string
	defaultAPIKey   string
	log             zerolog.Logger
}

// NewCatalog creates a Resty-backed model catalog.
func NewCatalog(store settings.Store, defaultEndpoint, defaultAPIKey string, logger zerolog.Logger) *Catalog {
	return &Catalog{
		httpClient: resty.New().
			SetHeader("Accept", "application/json").
			SetTimeout(30 * time.Second),
		settings:        store,
		defaultEndpoint: defaultEndpoint,
		defaultAPIKey:   defaultAPIKey,
		log:             logger.With().Str("component", "model_catalog").Logger(),
	}
}

// ListModels returns the model IDs in the order the provider lists them.
func (c *Catalog) ListModels(ctx context.Context) ([]string, error) {
	endpoint, err := c.value(ctx, settings.KeyAPIEndpoint, c.defaultEndpoint)
	if err != nil {
		return nil, err
	}
	apiKey, err := c.value(ctx, settings.KeyAPIKey, c.defaultAPIKey)
	if err != nil {
		return nil, err
	}
	if endpoint == "" || apiKey == "" {
		return nil, ErrProviderNotConfigured
	}

	var list modelList
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetResult(&list).
		Get(strings.TrimRight(endpoint, "/") + "/models")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list models: %s: %s", resp.Status(), resp.String())
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	c.log.Debug().Str("endpoint", endpoint).Int("models", len(ids)).Msg("listed provider models")
	return ids, nil
}

func (c *Catalog) value(ctx context.Context, key, fallback string) (string, error) {
	value, err := settings.Value(ctx, c.settings, key)
	if err != nil {
		return "", fmt.Errorf("read %s setting: %w", key, err)
	}
	if value == "" {
		return fallback, nil
	}
	return value, nil
}
