// Package config loads an agent node's static configuration from YAML,
// covering every option recognized by spec.md §6.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is an agent node's top-level configuration document.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Worker     WorkerConfig     `yaml:"worker"`
	Queue      QueueConfig      `yaml:"queue"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Peers      []PeerConfig     `yaml:"peers"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Auth       AuthConfig       `yaml:"auth"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// WorkerConfig bounds concurrent worker execution.
type WorkerConfig struct {
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
}

// QueueConfig sizes the per-task event queue.
type QueueConfig struct {
	CapacityPerTask int `yaml:"capacity_per_task"`
}

// CheckpointBackend selects which Store implementation a node runs.
type CheckpointBackend string

// Recognized checkpoint backends (spec.md §6: "checkpoint.backend ∈
// {memory, external}"). external is split into redis/mongo here since
// this repo ships two concrete durable backends rather than one.
const (
	CheckpointBackendMemory CheckpointBackend = "memory"
	CheckpointBackendRedis  CheckpointBackend = "redis"
	CheckpointBackendMongo  CheckpointBackend = "mongo"
)

// CheckpointConfig configures the checkpoint subsystem.
type CheckpointConfig struct {
	Backend    CheckpointBackend `yaml:"backend"`
	IntervalMS int               `yaml:"interval_ms"`

	RedisAddr string `yaml:"redis_addr"`
	MongoURI  string `yaml:"mongo_uri"`
	MongoDB   string `yaml:"mongo_db"`
}

// Interval returns the checkpoint coalescing window as a time.Duration.
func (c CheckpointConfig) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// PeerConfig describes one statically known peer agent node.
type PeerConfig struct {
	Name           string   `yaml:"name"`
	BaseURL        string   `yaml:"base_url"`
	Credentials    string   `yaml:"credentials"`
	SkillsOverride []string `yaml:"skills_override"`
}

// TimeoutsConfig bounds outbound peer calls and stream idleness.
type TimeoutsConfig struct {
	PeerConnectMS int `yaml:"peer_connect_ms"`
	PeerTotalMS   int `yaml:"peer_total_ms"`
	StreamIdleMS  int `yaml:"stream_idle_ms"`
}

// PeerConnect returns the peer dial timeout as a time.Duration.
func (t TimeoutsConfig) PeerConnect() time.Duration {
	return msOrDefault(t.PeerConnectMS, 5*time.Second)
}

// PeerTotal returns the total peer-call timeout as a time.Duration.
func (t TimeoutsConfig) PeerTotal() time.Duration {
	return msOrDefault(t.PeerTotalMS, 30*time.Second)
}

// StreamIdle returns the idle-stream timeout as a time.Duration.
func (t TimeoutsConfig) StreamIdle() time.Duration {
	return msOrDefault(t.StreamIdleMS, 60*time.Second)
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// AuthConfig declares the authentication schemes a node accepts.
type AuthConfig struct {
	Schemes     []string `yaml:"schemes"`
	TokenSource string   `yaml:"token_source"`
}

// RetentionConfig bounds checkpoint TTL per task-state class.
type RetentionConfig struct {
	CompletedDays int `yaml:"completed_days"`
	FailedDays    int `yaml:"failed_days"`
	ActiveDays    int `yaml:"active_days"`
}

// Days converts the configured day counts to time.Duration, falling back
// to checkpoint.DefaultRetentionPolicy's defaults (7/30/3 days) for any
// unset (zero) field.
func (r RetentionConfig) Days() (active, completed, failed time.Duration) {
	active = daysOrDefault(r.ActiveDays, 7)
	completed = daysOrDefault(r.CompletedDays, 30)
	failed = daysOrDefault(r.FailedDays, 3)
	return
}

func daysOrDefault(days int, def int) time.Duration {
	if days <= 0 {
		days = def
	}
	return time.Duration(days) * 24 * time.Hour
}

// Default returns a Config populated with spec.md §6's documented
// defaults, suitable as a base before Load overlays a file on top.
func Default() Config {
	return Config{
		Host: "0.0.0.0",
		Port: 8080,
		Worker: WorkerConfig{
			MaxConcurrentTasks: 100,
		},
		Queue: QueueConfig{
			CapacityPerTask: 1024,
		},
		Checkpoint: CheckpointConfig{
			Backend:    CheckpointBackendMemory,
			IntervalMS: 1000,
		},
		Timeouts: TimeoutsConfig{
			PeerConnectMS: 5000,
			PeerTotalMS:   30000,
			StreamIdleMS:  60000,
		},
		Retention: RetentionConfig{
			CompletedDays: 30,
			FailedDays:    3,
			ActiveDays:    7,
		},
	}
}

// Load reads and parses the YAML document at path, overlaying it onto
// Default(). A missing or empty file is not an error: Default() alone is
// returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants Load cannot express via zero-value defaults
// alone (e.g. a configured backend actually being one this binary knows
// how to construct).
func (c Config) Validate() error {
	switch c.Checkpoint.Backend {
	case CheckpointBackendMemory, CheckpointBackendRedis, CheckpointBackendMongo:
	default:
		return fmt.Errorf("config: unrecognized checkpoint.backend %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == CheckpointBackendRedis && c.Checkpoint.RedisAddr == "" {
		return fmt.Errorf("config: checkpoint.backend=redis requires redis_addr")
	}
	if c.Checkpoint.Backend == CheckpointBackendMongo && c.Checkpoint.MongoURI == "" {
		return fmt.Errorf("config: checkpoint.backend=mongo requires mongo_uri")
	}
	for i, p := range c.Peers {
		if p.Name == "" {
			return fmt.Errorf("config: peers[%d]: name is required", i)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("config: peers[%d]: base_url is required", i)
		}
	}
	return nil
}

// Addr returns the host:port string to bind the HTTP server to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
