package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/KafSnap/pkg/buffer"
)

// Defaults applied when the config file leaves a field out.
const (
	defaultControlListen = "127.0.0.1:7070"
	defaultFilePrefix    = "kafsnap"
	defaultOutputDir     = "."
	defaultStatePath     = "./data/state"
	defaultDuration      = 30.0 // seconds, matching the historical default
)

// Named type to allow reuse and clearer code
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"groupID"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
}

type SnapshotConfig struct {
	OutputDir   string   `yaml:"outputDir"`
	FilePrefix  string   `yaml:"filePrefix"`
	EventsTopic string   `yaml:"eventsTopic"`
	S3          S3Config `yaml:"s3"`
}

type ControlConfig struct {
	Listen string `yaml:"listen"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

// LimitValue is one duration or memory limit as written in YAML: a
// number, the literal "inherit", or absent. Negative and absent values
// mean "no limit" for that dimension.
type LimitValue struct {
	set     bool
	inherit bool
	value   float64
}

func (v *LimitValue) UnmarshalYAML(node *yaml.Node) error {
	v.set = true
	if node.Tag == "!!str" {
		if node.Value == "inherit" {
			v.inherit = true
			return nil
		}
		parsed, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid limit %q (number or \"inherit\")", node.Value)
		}
		v.value = parsed
		return nil
	}
	if err := node.Decode(&v.value); err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	return nil
}

// DurationLimit maps the YAML value to a buffer duration limit, taking
// the value as seconds.
func (v LimitValue) DurationLimit() time.Duration {
	switch {
	case v.inherit:
		return buffer.InheritDurationLimit
	case !v.set || v.value < 0:
		return buffer.NoDurationLimit
	default:
		return time.Duration(v.value * float64(time.Second))
	}
}

// MemoryLimit maps the YAML value to a buffer memory limit in bytes.
func (v LimitValue) MemoryLimit() int64 {
	switch {
	case v.inherit:
		return buffer.InheritMemoryLimit
	case !v.set || v.value < 0:
		return buffer.NoMemoryLimit
	default:
		return int64(v.value)
	}
}

type ChannelConfig struct {
	Name     string     `yaml:"name"`
	Duration LimitValue `yaml:"duration"` // seconds; negative/absent = no limit; "inherit" = default
	Memory   LimitValue `yaml:"memory"`   // bytes; negative/absent = no limit; "inherit" = default
}

// Limits returns the unresolved per-channel limits, sentinels included.
func (c ChannelConfig) Limits() buffer.TopicLimits {
	return buffer.TopicLimits{
		Duration: c.Duration.DurationLimit(),
		Memory:   c.Memory.MemoryLimit(),
	}
}

type DefaultsConfig struct {
	Duration LimitValue `yaml:"duration"` // seconds; negative = no limit
	Memory   LimitValue `yaml:"memory"`   // bytes; negative = no limit
}

type AppConfig struct {
	Kafka    KafkaConfig     `yaml:"kafka"`
	Control  ControlConfig   `yaml:"control"`
	Snapshot SnapshotConfig  `yaml:"snapshot"`
	State    StateConfig     `yaml:"state"`
	Defaults DefaultsConfig  `yaml:"defaults"`
	Channels []ChannelConfig `yaml:"channels"`
}

// BufferDefaults returns the process-wide limits channels inherit.
func (c *AppConfig) BufferDefaults() buffer.Defaults {
	return buffer.Defaults{
		Duration: c.Defaults.Duration.DurationLimit(),
		Memory:   c.Defaults.Memory.MemoryLimit(),
	}
}

// ChannelLimits returns the unresolved limits keyed by channel name.
func (c *AppConfig) ChannelLimits() map[string]buffer.TopicLimits {
	limits := make(map[string]buffer.TopicLimits, len(c.Channels))
	for _, ch := range c.Channels {
		limits[ch.Name] = ch.Limits()
	}
	return limits
}

// Load reads and parses a YAML config file into an AppConfig struct.
// It will terminate the program if the file is missing, malformed, or
// describes an unusable channel set: running with a broken configuration
// is worse than refusing to start.
func Load(path string) AppConfig {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Fatalf("Config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	cfg, err := parse(data)
	if err != nil {
		log.Fatalf("Error parsing config file: %v", err)
	}
	return cfg
}

func parse(data []byte) (AppConfig, error) {
	cfg := AppConfig{
		Control: ControlConfig{Listen: defaultControlListen},
		Snapshot: SnapshotConfig{
			OutputDir:  defaultOutputDir,
			FilePrefix: defaultFilePrefix,
		},
		State: StateConfig{Path: defaultStatePath},
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}

	// Default limits: bounded by duration, unbounded by memory.
	if !cfg.Defaults.Duration.set {
		cfg.Defaults.Duration = LimitValue{set: true, value: defaultDuration}
	}
	if cfg.Defaults.Duration.inherit || cfg.Defaults.Memory.inherit {
		return AppConfig{}, fmt.Errorf("defaults may not be set to \"inherit\"")
	}

	if len(cfg.Channels) == 0 {
		return AppConfig{}, fmt.Errorf("no channels configured")
	}
	seen := make(map[string]struct{}, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return AppConfig{}, fmt.Errorf("channel %d has an empty name", i)
		}
		if _, dup := seen[ch.Name]; dup {
			return AppConfig{}, fmt.Errorf("duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = struct{}{}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return AppConfig{}, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = defaultFilePrefix
	}

	return cfg, nil
}
