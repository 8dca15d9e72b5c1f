package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"image-similarity/internal/domain/entity"
)

const (
	MatcherNative = "native"
	MatcherGoCV   = "gocv"
)

type (
	Config struct {
		HTTPAddr      string `mapstructure:"http_addr"`
		TelegramToken string `mapstructure:"telegram_token"`

		MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
		MaxPixels      int   `mapstructure:"max_pixels"`
		CanvasWidth    int   `mapstructure:"canvas_width"`
		CanvasHeight   int   `mapstructure:"canvas_height"`

		SSIMWindow int `mapstructure:"ssim_window"`
		SSIMStride int `mapstructure:"ssim_stride"`

		MatcherBackend    string  `mapstructure:"matcher_backend"`
		ORBFeatures       int     `mapstructure:"orb_features"`
		ORBRatio          float64 `mapstructure:"orb_ratio"`
		MaxMatchesCeiling int     `mapstructure:"max_matches_ceiling"`
		DefaultMaxMatches int     `mapstructure:"default_max_matches"`

		DefaultExtractor    string        `mapstructure:"default_extractor"`
		DefaultResizePolicy string        `mapstructure:"default_resize_policy"`
		RequestTimeout      time.Duration `mapstructure:"request_timeout"`
		HeatmapAlpha        float64       `mapstructure:"heatmap_alpha"`

		ResNet50Model   string `mapstructure:"resnet50_model"`
		ResNet50Output  string `mapstructure:"resnet50_output"`
		MobileNetModel  string `mapstructure:"mobilenet_model"`
		MobileNetOutput string `mapstructure:"mobilenet_output"`
	}
)

var defaults = map[string]any{
	"http_addr":             ":5000",
	"telegram_token":        "",
	"max_upload_bytes":      8 << 20,
	"max_pixels":            40_000_000,
	"canvas_width":          320,
	"canvas_height":         320,
	"ssim_window":           7,
	"ssim_stride":           1,
	"matcher_backend":       MatcherNative,
	"orb_features":          500,
	"orb_ratio":             0.75,
	"max_matches_ceiling":   500,
	"default_max_matches":   30,
	"default_extractor":     string(entity.ModelResNet50),
	"default_resize_policy": string(entity.PolicyFit),
	"request_timeout":       "30s",
	"heatmap_alpha":         0.4,
	"resnet50_model":        "",
	"resnet50_output":       "",
	"mobilenet_model":       "",
	"mobilenet_output":      "",
}

// Load читает .env, необязательный config.yaml и переменные окружения.
// Переменные окружения важнее файла.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config.yaml")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отклоняет несовместимые значения
func (c *Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("HTTP_ADDR must not be empty")
	case c.MaxUploadBytes <= 0:
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	case c.MaxPixels <= 0:
		return errors.New("MAX_PIXELS must be positive")
	case c.CanvasWidth < 32 || c.CanvasHeight < 32:
		return errors.New("CANVAS_WIDTH and CANVAS_HEIGHT must be at least 32")
	case c.SSIMWindow < 3 || c.SSIMWindow%2 == 0:
		return errors.New("SSIM_WINDOW must be odd and at least 3")
	case c.SSIMWindow > c.CanvasWidth || c.SSIMWindow > c.CanvasHeight:
		return errors.New("SSIM_WINDOW must fit the canvas")
	case c.SSIMStride < 1:
		return errors.New("SSIM_STRIDE must be positive")
	case c.MatcherBackend != MatcherNative && c.MatcherBackend != MatcherGoCV:
		return errors.Errorf("MATCHER_BACKEND must be %q or %q", MatcherNative, MatcherGoCV)
	case c.ORBFeatures <= 0:
		return errors.New("ORB_FEATURES must be positive")
	case c.ORBRatio <= 0 || c.ORBRatio > 1:
		return errors.New("ORB_RATIO must be in (0, 1]")
	case c.MaxMatchesCeiling <= 0:
		return errors.New("MAX_MATCHES_CEILING must be positive")
	case c.DefaultMaxMatches <= 0 || c.DefaultMaxMatches > c.MaxMatchesCeiling:
		return errors.New("DEFAULT_MAX_MATCHES must be in [1, MAX_MATCHES_CEILING]")
	case c.RequestTimeout <= 0:
		return errors.New("REQUEST_TIMEOUT must be positive")
	case c.HeatmapAlpha <= 0 || c.HeatmapAlpha > 1:
		return errors.New("HEATMAP_ALPHA must be in (0, 1]")
	}
	if _, err := entity.ParseModelKind(c.DefaultExtractor, ""); err != nil || c.DefaultExtractor == "" {
		return errors.Errorf("DEFAULT_EXTRACTOR %q is not supported", c.DefaultExtractor)
	}
	if _, err := entity.ParseResizePolicy(c.DefaultResizePolicy, ""); err != nil || c.DefaultResizePolicy == "" {
		return errors.Errorf("DEFAULT_RESIZE_POLICY %q is not supported", c.DefaultResizePolicy)
	}
	return nil
}

// Extractor модель по умолчанию
func (c *Config) Extractor() entity.ModelKind {
	k, _ := entity.ParseModelKind(c.DefaultExtractor, entity.ModelResNet50)
	return k
}

// ResizePolicy политика по умолчанию
func (c *Config) ResizePolicy() entity.ResizePolicy {
	p, _ := entity.ParseResizePolicy(c.DefaultResizePolicy, entity.PolicyFit)
	return p
}
