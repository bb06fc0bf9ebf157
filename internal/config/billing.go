package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// SchedulerConfig controls the bill generation trigger.
type SchedulerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"`
	Timeout time.Duration `mapstructure:"timeout"`
	LockTTL time.Duration `mapstructure:"lockTTL"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Cron:    "0 0 * * *",
		Timeout: 10 * time.Minute,
		LockTTL: 15 * time.Minute,
	}
}

type SchedulerConfigHolder struct {
	current atomic.Value // holds SchedulerConfig
}

// NewStaticSchedulerConfigHolder wraps a fixed config without file watching.
func NewStaticSchedulerConfigHolder(cfg SchedulerConfig) *SchedulerConfigHolder {
	holder := &SchedulerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSchedulerConfigHolder() (*SchedulerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kost")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSchedulerConfig()
	v.SetDefault("scheduler.enabled", defaults.Enabled)
	v.SetDefault("scheduler.cron", defaults.Cron)
	v.SetDefault("scheduler.timeout", defaults.Timeout)
	v.SetDefault("scheduler.lockTTL", defaults.LockTTL)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg SchedulerConfig
	if err := v.UnmarshalKey("scheduler", &cfg); err != nil {
		return nil, err
	}
	if err := validateSchedulerConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSchedulerConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SchedulerConfig
		if err := v.UnmarshalKey("scheduler", &updated); err != nil {
			log.Printf("[scheduler-config] reload failed: %v", err)
			return
		}
		if err := validateSchedulerConfig(updated); err != nil {
			log.Printf("[scheduler-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[scheduler-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SchedulerConfigHolder) Get() SchedulerConfig {
	return h.current.Load().(SchedulerConfig)
}

func validateSchedulerConfig(cfg SchedulerConfig) error {
	if strings.TrimSpace(cfg.Cron) == "" {
		return errors.New("scheduler.cron cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return err
	}
	if cfg.Timeout <= 0 {
		return errors.New("scheduler.timeout must be positive")
	}
	if cfg.LockTTL < cfg.Timeout {
		return errors.New("scheduler.lockTTL must cover scheduler.timeout")
	}
	return nil
}
