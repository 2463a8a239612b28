package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncConfig tunes the GL sync retry decorator, the adapter circuit breaker
// and the orphan sweep.
type SyncConfig struct {
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"maxRequests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutiveFailures"`
}

type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	StaleAge time.Duration `mapstructure:"staleAge"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
		},
		Breaker: BreakerConfig{
			MaxRequests:         3,
			Interval:            2 * time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		Sweep: SweepConfig{
			Enabled:  false,
			Interval: 5 * time.Minute,
			StaleAge: 30 * time.Minute,
		},
	}
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewStaticSyncConfigHolder wraps a fixed SyncConfig, mostly for tests.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("glsync")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/taxledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TAXLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncConfig()
	v.SetDefault("glsync.retry.maxAttempts", defaults.Retry.MaxAttempts)
	v.SetDefault("glsync.retry.initialInterval", defaults.Retry.InitialInterval)
	v.SetDefault("glsync.retry.maxInterval", defaults.Retry.MaxInterval)
	v.SetDefault("glsync.retry.multiplier", defaults.Retry.Multiplier)
	v.SetDefault("glsync.breaker.maxRequests", defaults.Breaker.MaxRequests)
	v.SetDefault("glsync.breaker.interval", defaults.Breaker.Interval)
	v.SetDefault("glsync.breaker.timeout", defaults.Breaker.Timeout)
	v.SetDefault("glsync.breaker.consecutiveFailures", defaults.Breaker.ConsecutiveFailures)
	v.SetDefault("glsync.sweep.enabled", defaults.Sweep.Enabled)
	v.SetDefault("glsync.sweep.interval", defaults.Sweep.Interval)
	v.SetDefault("glsync.sweep.staleAge", defaults.Sweep.StaleAge)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeSyncConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateSyncConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSyncConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSyncConfig(v)
		if err != nil {
			log.Printf("[glsync-config] reload failed: %v", err)
			return
		}
		if err := validateSyncConfig(updated); err != nil {
			log.Printf("[glsync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[glsync-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeSyncConfig unmarshals through AllSettings so file values are merged
// with the registered defaults key by key.
func decodeSyncConfig(v *viper.Viper) (SyncConfig, error) {
	var wrapper struct {
		GLSync SyncConfig `mapstructure:"glsync"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return SyncConfig{}, err
	}
	return wrapper.GLSync, nil
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func validateSyncConfig(cfg SyncConfig) error {
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("glsync.retry.maxAttempts must be at least 1")
	}
	if cfg.Retry.InitialInterval <= 0 || cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return errors.New("glsync.retry intervals are invalid")
	}
	if cfg.Sweep.Enabled && (cfg.Sweep.Interval <= 0 || cfg.Sweep.StaleAge <= 0) {
		return errors.New("glsync.sweep interval and staleAge must be positive")
	}
	return nil
}
