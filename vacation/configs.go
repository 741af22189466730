package vacation

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/warp/yukyu/generic"
)

// ConfigCache holds encoded configs by version. Implementations may drop
// entries at any time.
type ConfigCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Del(key string)
}

// ConfigService persists and loads AppConfig versions.
type ConfigService struct {
	store  ConfigStore
	cache  ConfigCache
	logger zerolog.Logger
}

func NewConfigService(store ConfigStore, cache ConfigCache, logger zerolog.Logger) *ConfigService {
	if cache == nil {
		cache = noopConfigCache{}
	}
	return &ConfigService{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "config").Logger(),
	}
}

func configCacheKey(version string) string { return "appconfig:" + version }

// EncodeAppConfig returns the stored JSON form.
func EncodeAppConfig(cfg AppConfig) ([]byte, error) {
	return json.Marshal(cfg)
}

// DecodeAppConfig parses, normalizes and validates a stored payload.
func DecodeAppConfig(payload []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return AppConfig{}, generic.Validationf("invalid config payload: %v", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Save upserts cfg under version. New records are inactive unless activate
// is set; an existing record keeps its active flag.
func (s *ConfigService) Save(ctx context.Context, version string, cfg *AppConfig, activate bool) error {
	if version == "" {
		return generic.Validationf("config version is required")
	}
	if cfg == nil {
		return generic.Validationf("config payload is required")
	}
	c := *cfg
	if c.Version == "" {
		c.Version = version
	}
	if c.Version != version {
		return generic.Validationf("payload version %q does not match %q", c.Version, version)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}

	payload, err := EncodeAppConfig(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	now := time.Now().UTC()
	if err := s.store.SaveConfig(ctx, ConfigRecord{
		Version:   version,
		Payload:   payload,
		IsActive:  activate,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to save config %s: %w", version, err)
	}
	s.cache.Del(configCacheKey(version))

	if activate {
		if err := s.store.ActivateConfig(ctx, version); err != nil {
			return fmt.Errorf("failed to activate config %s: %w", version, err)
		}
	}
	s.logger.Info().Str("version", version).Bool("active", activate).Msg("config saved")
	return nil
}

// Activate makes version the only active config.
func (s *ConfigService) Activate(ctx context.Context, version string) error {
	rec, err := s.store.GetConfig(ctx, version)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", generic.ErrConfigNotFound, version)
	}
	return s.store.ActivateConfig(ctx, version)
}

// Get returns a stored version without fallback.
func (s *ConfigService) Get(ctx context.Context, version string) (AppConfig, error) {
	if payload, ok := s.cache.Get(configCacheKey(version)); ok {
		if cfg, err := DecodeAppConfig(payload); err == nil {
			return cfg, nil
		}
	}
	rec, err := s.store.GetConfig(ctx, version)
	if err != nil {
		return AppConfig{}, err
	}
	if rec == nil {
		return AppConfig{}, fmt.Errorf("%w: %s", generic.ErrConfigNotFound, version)
	}
	cfg, err := DecodeAppConfig(rec.Payload)
	if err != nil {
		return AppConfig{}, err
	}
	s.cache.Set(configCacheKey(version), rec.Payload)
	return cfg, nil
}

// Active returns the active stored config.
func (s *ConfigService) Active(ctx context.Context) (AppConfig, error) {
	rec, err := s.store.GetActiveConfig(ctx)
	if err != nil {
		return AppConfig{}, err
	}
	if rec == nil {
		return AppConfig{}, fmt.Errorf("%w: no active config", generic.ErrConfigNotFound)
	}
	return DecodeAppConfig(rec.Payload)
}

// Load never fails: the requested version, else the active config, else
// DefaultAppConfig. Lookup errors are logged and fall through.
func (s *ConfigService) Load(ctx context.Context, version string) AppConfig {
	if version != "" {
		cfg, err := s.Get(ctx, version)
		if err == nil {
			return cfg
		}
		s.logger.Warn().Err(err).Str("version", version).Msg("config version unavailable, falling back")
	}
	cfg, err := s.Active(ctx)
	if err == nil {
		return cfg
	}
	if !generic.IsNotFound(err) {
		s.logger.Warn().Err(err).Msg("active config unavailable, using default")
	}
	return DefaultAppConfig()
}

// List returns every stored version.
func (s *ConfigService) List(ctx context.Context) ([]ConfigRecord, error) {
	return s.store.ListConfigs(ctx)
}

type noopConfigCache struct{}

func (noopConfigCache) Get(string) ([]byte, bool) { return nil, false }
func (noopConfigCache) Set(string, []byte)        {}
func (noopConfigCache) Del(string)                {}
