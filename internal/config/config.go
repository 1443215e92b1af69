package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	defaultHTTPPort        = "8080"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "offer-workflow-task-queue"
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "offers"
	defaultAdapterTimeout  = 30
	defaultPollInterval    = 300
	defaultMaxPolls        = 288
	defaultSweepSchedule   = "@every 5m"
	defaultSenderName      = "Talent Team"
)

type Config struct {
	HTTPPort          string
	PostgresDSN       string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	BackgroundCheckURL    string
	BackgroundCheckAPIKey string
	DocGenURL             string
	DocGenAPIKey          string
	EmailURL              string
	EmailAPIKey           string
	AdapterTimeoutSec     int

	TrackingIDPrefix        string
	DeliveryPollIntervalSec int
	DeliveryMaxPolls        int
	SweepSchedule           string
	OfferSenderName         string
	MaxTemplateBytes        int64

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. Variables in a .env file in
// the working directory fill in anything the environment leaves unset.
func Load() (Config, error) {
	return LoadFile(".env")
}

func LoadFile(envFile string) (Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		HTTPPort:                v.GetString("HTTP_PORT"),
		PostgresDSN:             v.GetString("POSTGRES_DSN"),
		TemporalAddress:         v.GetString("TEMPORAL_ADDRESS"),
		TemporalNamespace:       v.GetString("TEMPORAL_NAMESPACE"),
		TemporalTaskQueue:       v.GetString("TEMPORAL_TASK_QUEUE"),
		MinioEndpoint:           v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:          v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:          v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:             v.GetString("MINIO_BUCKET"),
		MinioUseSSL:             v.GetBool("MINIO_USE_SSL"),
		BackgroundCheckURL:      v.GetString("BACKGROUND_CHECK_URL"),
		BackgroundCheckAPIKey:   v.GetString("BACKGROUND_CHECK_API_KEY"),
		DocGenURL:               v.GetString("DOCGEN_URL"),
		DocGenAPIKey:            v.GetString("DOCGEN_API_KEY"),
		EmailURL:                v.GetString("EMAIL_URL"),
		EmailAPIKey:             v.GetString("EMAIL_API_KEY"),
		AdapterTimeoutSec:       v.GetInt("ADAPTER_TIMEOUT_SEC"),
		TrackingIDPrefix:        v.GetString("TRACKING_ID_PREFIX"),
		DeliveryPollIntervalSec: v.GetInt("DELIVERY_POLL_INTERVAL_SEC"),
		DeliveryMaxPolls:        v.GetInt("DELIVERY_MAX_POLLS"),
		SweepSchedule:           v.GetString("SWEEP_SCHEDULE"),
		OfferSenderName:         v.GetString("OFFER_SENDER_NAME"),
		MaxTemplateBytes:        v.GetInt64("MAX_TEMPLATE_BYTES"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		LogFormat:               v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", defaultHTTPPort)
	v.SetDefault("TEMPORAL_ADDRESS", defaultTemporalAddress)
	v.SetDefault("TEMPORAL_NAMESPACE", defaultTemporalNS)
	v.SetDefault("TEMPORAL_TASK_QUEUE", defaultTaskQueue)
	v.SetDefault("MINIO_ENDPOINT", defaultMinioEndpoint)
	v.SetDefault("MINIO_BUCKET", defaultMinioBucket)
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("ADAPTER_TIMEOUT_SEC", defaultAdapterTimeout)
	v.SetDefault("TRACKING_ID_PREFIX", "offer-delivery")
	v.SetDefault("DELIVERY_POLL_INTERVAL_SEC", defaultPollInterval)
	v.SetDefault("DELIVERY_MAX_POLLS", defaultMaxPolls)
	v.SetDefault("SWEEP_SCHEDULE", defaultSweepSchedule)
	v.SetDefault("OFFER_SENDER_NAME", defaultSenderName)
	v.SetDefault("MAX_TEMPLATE_BYTES", 5*1024*1024)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func (c Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.AdapterTimeoutSec <= 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT_SEC must be positive, got %d", c.AdapterTimeoutSec)
	}
	if c.DeliveryPollIntervalSec <= 0 {
		return fmt.Errorf("DELIVERY_POLL_INTERVAL_SEC must be positive, got %d", c.DeliveryPollIntervalSec)
	}
	if c.DeliveryMaxPolls <= 0 {
		return fmt.Errorf("DELIVERY_MAX_POLLS must be positive, got %d", c.DeliveryMaxPolls)
	}
	if c.MaxTemplateBytes <= 0 {
		return fmt.Errorf("MAX_TEMPLATE_BYTES must be positive, got %d", c.MaxTemplateBytes)
	}
	return nil
}

func (c Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSec) * time.Second
}

func (c Config) DeliveryPollInterval() time.Duration {
	return time.Duration(c.DeliveryPollIntervalSec) * time.Second
}
