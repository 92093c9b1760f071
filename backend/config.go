package main

import (
	"fmt"
	"os"
	"sync"
)

type Config struct {
	Port               int     `json:"port"`
	ModelPath          string  `json:"model_path"`
	Seed               uint64  `json:"seed"`
	DefaultElo         int     `json:"default_elo"`
	TrainerAutostart   bool    `json:"trainer_autostart"`
	TrainerRating      int     `json:"trainer_rating"`
	TrainerExploreProb float64 `json:"trainer_explore_prob"`
	TrainerCooldownMs  int     `json:"trainer_cooldown_ms"`
	KeepAliveMinutes   int     `json:"keep_alive_minutes"`
	KeepAliveURL       string  `json:"keep_alive_url"`
}

type ConfigStore struct {
	mu     sync.RWMutex
	config Config
}

func DefaultConfig() Config {
	return Config{
		Port:       8080,
		ModelPath:  "model.nn",
		Seed:       1,
		DefaultElo: 1500,

		TrainerAutostart:   true,
		TrainerRating:      2000,
		TrainerExploreProb: 0.1,
		TrainerCooldownMs:  1000,

		// Free-tier hosts idle out after 15 minutes without traffic.
		KeepAliveMinutes: 14,
		KeepAliveURL:     "",
	}
}

// ConfigFromEnv layers environment overrides on top of the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Port = getenvInt("PORT", cfg.Port)
	cfg.ModelPath = getenv("MODEL_PATH", cfg.ModelPath)
	cfg.Seed = uint64(getenvInt("ENGINE_SEED", int(cfg.Seed)))
	cfg.DefaultElo = getenvInt("DEFAULT_ELO", cfg.DefaultElo)
	cfg.TrainerAutostart = getenvBool("TRAINER_AUTOSTART", cfg.TrainerAutostart)
	cfg.TrainerRating = getenvInt("TRAINER_RATING", cfg.TrainerRating)
	cfg.TrainerExploreProb = getenvFloat("TRAINER_EXPLORE_PROB", cfg.TrainerExploreProb)
	cfg.TrainerCooldownMs = getenvInt("TRAINER_COOLDOWN_MS", cfg.TrainerCooldownMs)
	cfg.KeepAliveMinutes = getenvInt("KEEP_ALIVE_MINUTES", cfg.KeepAliveMinutes)
	cfg.KeepAliveURL = getenv("KEEP_ALIVE_URL", cfg.KeepAliveURL)
	return cfg
}

var configStore = &ConfigStore{config: DefaultConfig()}

func GetConfig() Config {
	return configStore.Get()
}

func (c *ConfigStore) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *ConfigStore) Update(newConfig Config) {
	c.mu.Lock()
	c.config = newConfig
	c.mu.Unlock()
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var parsed float64
	if _, err := fmt.Sscanf(value, "%f", &parsed); err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	switch getenv(key, "") {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
