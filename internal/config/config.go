// Package config loads the YAML configuration file each CLI binary takes
// as its single positional argument (spec §6), with environment variable
// overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration recognized by both the retriever and the
// clusterer binaries.
type Config struct {
	Limits      LimitsConfig      `yaml:"limits"`
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Browser     BrowserConfig     `yaml:"browser"`
	Clustering  ClusteringConfig  `yaml:"clustering"`
}

// LimitsConfig corresponds to spec §6's LIMITS section.
type LimitsConfig struct {
	BatchSize            int           `yaml:"batch_size"`              // LIMITS.BATCH_SIZE
	MaxVideoDownloadSize int64         `yaml:"max_video_download_size"` // LIMITS.max_video_download_size
	ResetBrowserAfterN   int           `yaml:"reset_browser_after_n"`   // spec §4.4: N = 2000
	TooManyRequestsSleep time.Duration `yaml:"too_many_requests_sleep"` // spec §4.5 default 4h
	NoWorkSleep          time.Duration `yaml:"no_work_sleep"`           // spec §4.5 step 1 default 1h
	VideoDownloadTimeout time.Duration `yaml:"video_download_timeout"`  // spec §5 default 30s
}

// LoggingConfig corresponds to spec §6's LOGGING section.
type LoggingConfig struct {
	SlackURL             string `yaml:"slack_url"`
	SlackUserIDToInclude string `yaml:"slack_user_id_to_include"`
}

// DatabaseConfig holds the relational store's connection parameters (spec
// §6: "Database connection parameters (host, port, user, password, name)").
// The concrete driver is Cassandra (gocql), following the teacher.
type DatabaseConfig struct {
	Hosts       []string `yaml:"hosts"`
	Keyspace    string   `yaml:"keyspace"`
	Consistency string   `yaml:"consistency"`
	LocalDC     string   `yaml:"local_dc"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
}

// ObjectStoreConfig holds the S3-compatible object store's connection
// parameters (spec §6: "the object store client" collaborator).
type ObjectStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// BrowserConfig carries the opaque browser/extractor parameters through to
// those components without this core needing to understand them (spec §6:
// "Browser/extractor parameters (opaque; passed through to those
// components)").
type BrowserConfig struct {
	Options map[string]string `yaml:"options"`
}

// ClusteringConfig holds Similarity Clusterer settings.
type ClusteringConfig struct {
	// BitDifferenceThreshold is K in spec §4.6 (default 3).
	BitDifferenceThreshold int `yaml:"bit_difference_threshold"`
	// StableClusterIDs enables the optional renumbering hook from spec §9
	// ("Cluster numbering is not stable across runs... intentionally
	// exposed here and left optional").
	StableClusterIDs bool `yaml:"stable_cluster_ids"`
}

// Load reads configuration from the YAML file at path, applies environment
// variable overrides, and validates the result. Mirrors the teacher's
// config.Load() shape (internal/config/config.go): defaults, then file,
// then env, then validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the spec's documented defaults (§4.5, §6).
func DefaultConfig() *Config {
	return &Config{
		Limits: LimitsConfig{
			BatchSize:            20,
			MaxVideoDownloadSize: 512_000_000,
			ResetBrowserAfterN:   2000,
			TooManyRequestsSleep: 4 * time.Hour,
			NoWorkSleep:          1 * time.Hour,
			VideoDownloadTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Hosts:       []string{"localhost:9042"},
			Keyspace:    "ad_archive",
			Consistency: "LOCAL_QUORUM",
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
		Clustering: ClusteringConfig{
			BitDifferenceThreshold: 3,
		},
	}
}

// Validate rejects configurations that would make the pipeline or
// clusterer misbehave silently.
func (c *Config) Validate() error {
	if c.Limits.BatchSize <= 0 {
		return fmt.Errorf("limits.batch_size must be positive, got %d", c.Limits.BatchSize)
	}
	if c.Limits.MaxVideoDownloadSize <= 0 {
		return fmt.Errorf("limits.max_video_download_size must be positive, got %d", c.Limits.MaxVideoDownloadSize)
	}
	if c.Clustering.BitDifferenceThreshold < 0 {
		return fmt.Errorf("clustering.bit_difference_threshold must be non-negative, got %d", c.Clustering.BitDifferenceThreshold)
	}
	if len(c.Database.Hosts) == 0 {
		return fmt.Errorf("database.hosts must not be empty")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIMITS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.BatchSize = n
		}
	}
	if v := os.Getenv("LIMITS_MAX_VIDEO_DOWNLOAD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Limits.MaxVideoDownloadSize = n
		}
	}
	if v := os.Getenv("LOGGING_SLACK_URL"); v != "" {
		c.Logging.SlackURL = v
	}
	if v := os.Getenv("LOGGING_SLACK_USER_ID_TO_INCLUDE"); v != "" {
		c.Logging.SlackUserIDToInclude = v
	}
	if v := os.Getenv("DATABASE_USERNAME"); v != "" {
		c.Database.Username = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("OBJECT_STORE_ACCESS_KEY_ID"); v != "" {
		c.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("OBJECT_STORE_SECRET_ACCESS_KEY"); v != "" {
		c.ObjectStore.SecretAccessKey = v
	}
}
