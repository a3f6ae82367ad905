package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	DataDir       string `yaml:"dataDir"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	Label         string `yaml:"label"`
	SegmentWidth  int    `yaml:"segmentWidth"`
	MaxDepth      int    `yaml:"maxDepth"`
	CacheLimitMB  int    `yaml:"cacheLimitMB"`
	SortField     string `yaml:"sortField"`
}

// GetConfig reads config.yaml from the working directory and applies
// defaults. A first CLI argument overrides the data directory.
func GetConfig() Config {
	var config Config

	data, err := os.ReadFile("config.yaml")
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			log.Fatalf("error: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("error: %v", err)
	}

	if config.DataDir == "" {
		config.DataDir = "treedex-data"
	}

	if config.MinimumFreeGB == 0 {
		config.MinimumFreeGB = 1
	}

	if len(os.Args) > 1 {
		config.DataDir = os.Args[1]
	}

	return config
}
