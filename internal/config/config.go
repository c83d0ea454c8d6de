package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the service.
type Config struct {
	Server       ServerConfig
	AI           AIConfig
	Storage      StorageConfig
	Integrations IntegrationConfig
	Log          LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		AI:           ai,
		Storage:      storage,
		Integrations: loadIntegrationConfig(),
		Log:          logCfg,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are used as given.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig describes the Ark completion service.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	TitleModel  string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether a model and credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates the model used for routing and replies.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	return c.newChatModel(ctx, c.Model)
}

// NewTitleModel creates the model used for thread titles, which falls back
// to the main model when no title model is set.
func (c AIConfig) NewTitleModel(ctx context.Context) (model.ChatModel, error) {
	if c.TitleModel == "" {
		return c.NewChatModel(ctx)
	}
	return c.newChatModel(ctx, c.TitleModel)
}

// WithProvider returns a copy whose endpoint and API key are replaced by the
// non-empty arguments. A runtime key takes precedence over AK/SK credentials.
func (c AIConfig) WithProvider(endpoint, apiKey string) AIConfig {
	if endpoint != "" {
		c.BaseURL = endpoint
	}
	if apiKey != "" {
		c.APIKey = apiKey
		c.AccessKey, c.SecretKey = "", ""
	}
	return c
}

func (c AIConfig) newChatModel(ctx context.Context, name string) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       name,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		TitleModel:  strings.TrimSpace(os.Getenv("ARK_TITLE_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// StorageConfig selects the thread and settings store.
type StorageConfig struct {
	Driver string
	Path   string
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", DriverSQLite))
	switch driver {
	case DriverSQLite, DriverMemory:
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value %q: want %s or %s", driver, DriverSQLite, DriverMemory)
	}

	return StorageConfig{
		Driver: driver,
		Path:   getEnvOrDefault("SQLITE_PATH", "data/design-desk.db"),
	}, nil
}

// IntegrationConfig seeds the settings store on startup.
type IntegrationConfig struct {
	FigmaToken   string
	FigmaBaseURL string
	GitHubToken  string
}

func loadIntegrationConfig() IntegrationConfig {
	return IntegrationConfig{
		FigmaToken:   strings.TrimSpace(os.Getenv("FIGMA_TOKEN")),
		FigmaBaseURL: getEnvOrDefault("FIGMA_API_BASE_URL", "https://api.figma.com"),
		GitHubToken:  strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
	}
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Pretty: pretty,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
