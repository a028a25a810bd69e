package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all Backstop configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	DBPath    string           `yaml:"db_path" validate:"required"`
	Log       LogConfig        `yaml:"log"`
	Cache     CacheConfig      `yaml:"cache"`
	Dispatch  DispatchConfig   `yaml:"dispatch"`
	Server    ServerConfig     `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
	Capacity int           `yaml:"capacity" validate:"gt=0"`
}

// DispatchConfig bounds provider attempts.
type DispatchConfig struct {
	// Timeout applies to providers that do not set their own.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// MaxWait is the longest min-interval wait the dispatcher will sleep
	// through before skipping a provider.
	MaxWait time.Duration `yaml:"max_wait" validate:"gte=0"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	RatePerMinute int `yaml:"rate_per_minute" validate:"gte=0"`
}

// Response shapes a provider can speak.
const (
	ShapeChat       = "chat"
	ShapeMessages   = "messages"
	ShapeGemini     = "gemini"
	ShapeCompletion = "completion"
	ShapeMock       = "mock"
)

// Provider tiers, reported by the orchestrator's current mode.
const (
	TierMock   = "mock"
	TierFree   = "free"
	TierCustom = "custom"
)

// ProviderConfig defines an upstream inference provider. Negative limits
// mean unlimited; a zero limit admits no requests.
type ProviderConfig struct {
	ID            string        `yaml:"id" validate:"required"`
	Vendor        string        `yaml:"vendor"`
	Tier          string        `yaml:"tier" validate:"omitempty,oneof=mock free custom"`
	Priority      int           `yaml:"priority"`
	DailyLimit    int           `yaml:"daily_limit"`
	MonthlyLimit  int           `yaml:"monthly_limit"`
	MinInterval   time.Duration `yaml:"min_interval" validate:"gte=0"`
	Endpoint      string        `yaml:"endpoint" validate:"omitempty,url"`
	Model         string        `yaml:"model"`
	ResponseShape string        `yaml:"response_shape" validate:"required,oneof=chat messages gemini completion mock"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxTokens     int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature   float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	TextPath      string        `yaml:"text_path"`
	APIKey        string        `yaml:"api_key"`
	// Kinds restricts the provider to some request kinds. Empty means all.
	Kinds         []string      `yaml:"kinds" validate:"dive,oneof=recipe palette caption"`
}

// NeedsCredential reports whether the provider requires a stored key.
func (p ProviderConfig) NeedsCredential() bool {
	return p.ResponseShape != ShapeMock
}

// Serves reports whether the provider accepts requests of kind.
func (p ProviderConfig) Serves(kind string) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// EffectiveTier returns the tier, defaulting by shape.
func (p ProviderConfig) EffectiveTier() string {
	if p.Tier != "" {
		return p.Tier
	}
	if p.ResponseShape == ShapeMock {
		return TierMock
	}
	return TierCustom
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "backstop.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			TTL:      30 * time.Minute,
			Capacity: 50,
		},
		Dispatch: DispatchConfig{
			Timeout: 12 * time.Second,
			MaxWait: 2 * time.Second,
		},
		Server: ServerConfig{
			RatePerMinute: 60,
		},
	}
}

// Load reads .env files if present, then a YAML config file with
// environment variables expanded, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// ErrDuplicateProvider is returned when two providers share an id.
var ErrDuplicateProvider = errors.New("duplicate provider id")

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Provider returns the provider with the given id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
