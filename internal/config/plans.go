package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// UnlimitedItems is the plan-limit sentinel meaning no cap on live items.
const UnlimitedItems = -1

// PlanConfig maps plan names to the number of live items the plan allows.
type PlanConfig struct {
	Limits map[string]int `mapstructure:"limits"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Limits: map[string]int{
			"starter":    5,
			"growth":     25,
			"business":   100,
			"enterprise": UnlimitedItems,
		},
	}
}

// PlanConfigHolder exposes an immutable snapshot of the plan limits,
// hot-reloaded when the backing config file changes.
type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/guidely/config")
	v.AddConfigPath("/etc/guidely")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GUIDELY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanConfig()
		v.SetDefault("plans.limits", defaults.Limits)
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanHolder wraps a fixed plan config, for tests.
func NewStaticPlanHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// Snapshot returns the current plan config.
func (h *PlanConfigHolder) Snapshot() PlanConfig {
	if h == nil {
		return DefaultPlanConfig()
	}
	if cfg, ok := h.current.Load().(PlanConfig); ok {
		return cfg
	}
	return DefaultPlanConfig()
}

// LimitFor returns the live-item limit for a plan name. Unknown plans
// fall back to the starter limit.
func (h *PlanConfigHolder) LimitFor(plan string) int {
	cfg := h.Snapshot()
	if limit, ok := cfg.Limits[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return limit
	}
	if limit, ok := cfg.Limits["starter"]; ok {
		return limit
	}
	return DefaultPlanConfig().Limits["starter"]
}

func validatePlanConfig(cfg PlanConfig) error {
	if len(cfg.Limits) == 0 {
		return errors.New("plan config: limits must not be empty")
	}
	for name, limit := range cfg.Limits {
		if strings.TrimSpace(name) == "" {
			return errors.New("plan config: plan name must not be empty")
		}
		if limit < UnlimitedItems || limit == 0 {
			return errors.New("plan config: limit must be positive or the unlimited sentinel")
		}
	}
	return nil
}
