package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func readConfig() (*Config, error) {
	configFile := getEnv("CONFIG_FILE", "config.json")

	// Get endpoint list
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file:%s", err)
	}

	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	// Parse JSON data
	var config Config
	err := json.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing JSON:%s", err)
	}

	if config.AlertsEndpoint == "" {
		return nil, fmt.Errorf("config is missing alertsEndpoint")
	}

	// Fill in the defaults for anything the file leaves out
	if config.DefaultVigencias == nil {
		config.DefaultVigencias = map[string]int{}
	}
	for key, days := range defaultVigencias {
		if _, ok := config.DefaultVigencias[key]; !ok {
			config.DefaultVigencias[key] = days
		}
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
