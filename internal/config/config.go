package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the loader
type Config struct {
	// Core settings
	ServerName string
	OPCUAPort  int
	HealthPort int

	// Nodeset files to load, in order
	NodesetFiles []string

	// Behavior
	ServeAddressSpace bool // start an OPC UA server with the loaded model
	LogLevel          string
}

// fileConfig is the YAML shape of an optional config file.
type fileConfig struct {
	ServerName        string   `yaml:"server_name"`
	OPCUAPort         int      `yaml:"opcua_port"`
	HealthPort        int      `yaml:"health_port"`
	NodesetFiles      []string `yaml:"nodeset_files"`
	ServeAddressSpace *bool    `yaml:"serve_address_space"`
	LogLevel          string   `yaml:"log_level"`
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and
// environment variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := &Config{
		ServerName:        "NodesetLoader-01",
		OPCUAPort:         4840,
		HealthPort:        8081,
		ServeAddressSpace: true,
		LogLevel:          "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerName = getEnvOrDefault("SERVER_NAME", cfg.ServerName)
	cfg.OPCUAPort = getEnvAsIntOrDefault("OPCUA_PORT", cfg.OPCUAPort)
	cfg.HealthPort = getEnvAsIntOrDefault("HEALTH_PORT", cfg.HealthPort)
	cfg.ServeAddressSpace = getEnvAsBoolOrDefault("SERVE_ADDRESS_SPACE", cfg.ServeAddressSpace)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	if files := os.Getenv("NODESET_FILES"); files != "" {
		cfg.NodesetFiles = nil
		for _, f := range strings.Split(files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.NodesetFiles = append(cfg.NodesetFiles, f)
			}
		}
	}

	return cfg, nil
}

// applyFile overlays settings from a YAML config file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if fc.ServerName != "" {
		c.ServerName = fc.ServerName
	}
	if fc.OPCUAPort != 0 {
		c.OPCUAPort = fc.OPCUAPort
	}
	if fc.HealthPort != 0 {
		c.HealthPort = fc.HealthPort
	}
	if len(fc.NodesetFiles) > 0 {
		c.NodesetFiles = fc.NodesetFiles
	}
	if fc.ServeAddressSpace != nil {
		c.ServeAddressSpace = *fc.ServeAddressSpace
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
