package staticache

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration accepted by the staticache
// binary. Zero values fall back to the defaults applied by LoadConfig.
type FileConfig struct {
	Listen struct {
		Addr string `yaml:"addr"`
		Port int    `yaml:"port"`
	} `yaml:"listen"`
	Root   string   `yaml:"root"`
	Locked []string `yaml:"locked"`
	Cache  struct {
		// Backend is one of "memory" (default), "sqlite" or "leveldb".
		Backend string `yaml:"backend"`
		// Path of the database file or directory, for the persistent
		// backends.
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Admin struct {
		// Addr enables the admin endpoint when non-empty.
		Addr string `yaml:"addr"`
	} `yaml:"admin"`
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() FileConfig {
	var config FileConfig
	applyDefaults(&config)
	return config
}

func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	applyDefaults(&config)
	return config, nil
}

func applyDefaults(config *FileConfig) {
	if config.Listen.Addr == "" {
		config.Listen.Addr = "127.0.0.1"
	}
	if config.Listen.Port == 0 {
		config.Listen.Port = 8080
	}
	if config.Root == "" {
		config.Root = "."
	}
}
