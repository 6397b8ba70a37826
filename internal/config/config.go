// Package config loads run configuration from the environment and holds the
// static category table that fixes, per chart category, the expected tooltip
// parameter names and the matching native datastore columns.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the run-level settings.
type Config struct {
	DashboardURL string
	Username     string
	Password     string
	DBPath       string
	OutputDir    string
	MQTTBroker   string
	MQTTTopic    string
}

// Load reads configuration from environment variables, with a .env file as
// an optional source.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}

	cfg := Config{
		DashboardURL: os.Getenv("CHARTAUDIT_URL"),
		Username:     os.Getenv("CHARTAUDIT_USER"),
		Password:     os.Getenv("CHARTAUDIT_PASS"),
		DBPath:       os.Getenv("CHARTAUDIT_DB"),
		OutputDir:    os.Getenv("CHARTAUDIT_OUT_DIR"),
		MQTTBroker:   os.Getenv("CHARTAUDIT_MQTT_BROKER"),
		MQTTTopic:    os.Getenv("CHARTAUDIT_MQTT_TOPIC"),
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "chartaudit/runs"
	}
	if cfg.DashboardURL == "" || cfg.DBPath == "" {
		return Config{}, fmt.Errorf("configuration incomplete: set CHARTAUDIT_URL and CHARTAUDIT_DB")
	}
	return cfg, nil
}
