package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/service"
)

type Config struct {
	DatabaseURL string
	AutoMigrate bool
	Port        string
	Env         string

	LLM       service.LLMConfig
	Detection detection.Config
}

func loadConfig() *Config {
	defaults := detection.DefaultConfig()

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: getBoolEnv("AUTO_MIGRATE", true),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("GO_ENV", "development"),
		LLM: service.LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Model:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout:  getDurationEnv("LLM_TIMEOUT", 20*time.Second),
		},
		Detection: detection.Config{
			Window:            getDurationEnv("DETECTION_WINDOW", defaults.Window),
			BaselineWindow:    getDurationEnv("DETECTION_BASELINE_WINDOW", defaults.BaselineWindow),
			BaselineExclusion: getDurationEnv("DETECTION_BASELINE_EXCLUSION", defaults.BaselineExclusion),
			MinBaselineFlow:   getFloatEnv("DETECTION_MIN_BASELINE_FLOW", defaults.MinBaselineFlow),
			MinBaselineSpeed:  getFloatEnv("DETECTION_MIN_BASELINE_SPEED", defaults.MinBaselineSpeed),
			FlowDropRatio:     getFloatEnv("DETECTION_FLOW_DROP_RATIO", defaults.FlowDropRatio),
			MaxCongestedSpeed: getFloatEnv("DETECTION_MAX_CONGESTED_SPEED", defaults.MaxCongestedSpeed),
			SustainedSamples:  defaults.SustainedSamples,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}
