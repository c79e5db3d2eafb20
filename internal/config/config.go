package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in Config.Backend.
const (
	BackendDisk  = "disk"
	BackendKafka = "kafka"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend           string      `json:"backend" yaml:"backend"`
	DataDir           string      `json:"dataDir" yaml:"dataDir"`
	DefaultPartitions int         `json:"defaultPartitions" yaml:"defaultPartitions"`
	HTTPAddr          string      `json:"httpAddr" yaml:"httpAddr"`
	Disk              DiskConfig  `json:"disk" yaml:"disk"`
	Kafka             KafkaConfig `json:"kafka" yaml:"kafka"`
	Log               LogConfig   `json:"log" yaml:"log"`
}

// DiskConfig configures the cycle-file backend.
type DiskConfig struct {
	// Retention is a duration like "10m", "12h" or "4d". "0" keeps everything.
	Retention string `json:"retention" yaml:"retention"`
	// Fsync is one of always, interval, never.
	Fsync string `json:"fsync" yaml:"fsync"`
}

// KafkaConfig configures the Kafka backend.
type KafkaConfig struct {
	Brokers           []string `json:"brokers" yaml:"brokers"`
	TopicPrefix       string   `json:"topicPrefix" yaml:"topicPrefix"`
	ReplicationFactor int      `json:"replicationFactor" yaml:"replicationFactor"`
	ClientID          string   `json:"clientId" yaml:"clientId"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Backend:           BackendDisk,
		DefaultPartitions: 1,
		HTTPAddr:          ":8080",
		Disk: DiskConfig{
			Retention: "4d",
			Fsync:     "interval",
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			TopicPrefix:       "flolog-",
			ReplicationFactor: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json config: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the fields the runtime depends on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendDisk:
		if c.DataDir == "" {
			return fmt.Errorf("disk backend requires a data directory")
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka backend requires at least one broker")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.DefaultPartitions <= 0 {
		return fmt.Errorf("defaultPartitions must be positive, got %d", c.DefaultPartitions)
	}
	return nil
}
