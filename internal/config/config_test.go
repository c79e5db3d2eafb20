package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != BackendDisk {
		t.Fatalf("default backend should be disk, got %q", cfg.Backend)
	}
	if cfg.DefaultPartitions != 1 {
		t.Fatalf("partitions default")
	}
	if cfg.Disk.Retention != "4d" {
		t.Fatalf("retention default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flolog.json")
	data := []byte(`{"backend":"kafka","defaultPartitions":8,"kafka":{"brokers":["k1:9092","k2:9092"],"topicPrefix":"t-"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendKafka {
		t.Fatalf("expected kafka")
	}
	if cfg.DefaultPartitions != 8 {
		t.Fatalf("expected 8")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.TopicPrefix != "t-" {
		t.Fatalf("kafka section: %+v", cfg.Kafka)
	}
	// untouched fields keep defaults
	if cfg.Disk.Retention != "4d" {
		t.Fatalf("expected default retention, got %q", cfg.Disk.Retention)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flolog.yaml")
	data := []byte("backend: disk\ndataDir: /tmp/x\ndisk:\n  retention: 12h\n  fsync: always\nlog:\n  level: debug\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/x" || cfg.Disk.Retention != "12h" || cfg.Disk.Fsync != "always" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level")
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(file, []byte("backend: [unterminated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("FLOLOG_BACKEND", "kafka")
	t.Setenv("FLOLOG_KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("FLOLOG_DEFAULT_PARTITIONS", "24")
	t.Setenv("FLOLOG_DISK_RETENTION", "10m")
	FromEnv(&cfg)
	if cfg.Backend != "kafka" {
		t.Fatalf("env override backend")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:2" {
		t.Fatalf("env override brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.DefaultPartitions != 24 {
		t.Fatalf("env override partitions")
	}
	if cfg.Disk.Retention != "10m" {
		t.Fatalf("env override retention")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("disk backend without data dir should fail")
	}
	cfg.DataDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.Backend = "nope"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown backend should fail")
	}
	cfg.Backend = BackendKafka
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("kafka without brokers should fail")
	}
}
