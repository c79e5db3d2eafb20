package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays FLOLOG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLOLOG_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("FLOLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLOLOG_DEFAULT_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultPartitions = n
		}
	}
	if v := os.Getenv("FLOLOG_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("FLOLOG_DISK_RETENTION"); v != "" {
		cfg.Disk.Retention = v
	}
	if v := os.Getenv("FLOLOG_DISK_FSYNC"); v != "" {
		cfg.Disk.Fsync = v
	}
	if v := os.Getenv("FLOLOG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, p)
			}
		}
	}
	if v := os.Getenv("FLOLOG_KAFKA_TOPIC_PREFIX"); v != "" {
		cfg.Kafka.TopicPrefix = v
	}
	if v := os.Getenv("FLOLOG_KAFKA_REPLICATION_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kafka.ReplicationFactor = n
		}
	}
	if v := os.Getenv("FLOLOG_KAFKA_CLIENT_ID"); v != "" {
		cfg.Kafka.ClientID = v
	}
	if v := os.Getenv("FLOLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLOLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
