// Package config holds the application configuration.
//
// Values come from the shizi.yml file read by viper, then from SHIZI_*
// environment variables, with defaults from DefaultConfig for anything
// left unset.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, directories and env prefix.
const AppName = "shizi"

// Config contains all configuration options.
type Config struct {
	Content  ContentConfig  `mapstructure:"content"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Network  NetworkConfig  `mapstructure:"network"`
	Server   ServerConfig   `mapstructure:"server"`

	// StateDir holds the persisted position and login.
	StateDir string `mapstructure:"state_dir" env:"SHIZI_STATE_DIR"`
	Debug    bool   `mapstructure:"debug" env:"SHIZI_DEBUG"`
}

// ContentConfig locates the level documents.
type ContentConfig struct {
	// Location is a directory or an http(s) base URL.
	Location string `mapstructure:"location" env:"SHIZI_CONTENT"`
	// Watch reloads changed documents when Location is a directory.
	Watch bool `mapstructure:"watch" env:"SHIZI_CONTENT_WATCH"`
}

// StorageConfig selects the object store holding recordings.
type StorageConfig struct {
	Driver        string    `mapstructure:"driver" env:"SHIZI_STORAGE_DRIVER"`
	PublicBaseURL string    `mapstructure:"public_base_url" env:"SHIZI_STORAGE_PUBLIC_URL"`
	Dir           string    `mapstructure:"dir" env:"SHIZI_STORAGE_DIR"`
	S3            S3Config  `mapstructure:"s3"`
	GCS           GCSConfig `mapstructure:"gcs"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" env:"SHIZI_S3_ENDPOINT"`
	Region          string `mapstructure:"region" env:"SHIZI_S3_REGION"`
	Bucket          string `mapstructure:"bucket" env:"SHIZI_S3_BUCKET"`
	AccessKeyID     string `mapstructure:"access_key_id" env:"SHIZI_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"secret_access_key" env:"SHIZI_S3_SECRET_ACCESS_KEY"`
	PathStyle       bool   `mapstructure:"path_style" env:"SHIZI_S3_PATH_STYLE"`
}

// GCSConfig configures a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket       string `mapstructure:"bucket" env:"SHIZI_GCS_BUCKET"`
	Credentials  string `mapstructure:"credentials" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	EmulatorHost string `mapstructure:"emulator_host" env:"STORAGE_EMULATOR_HOST"`
}

// DatabaseConfig selects the records database.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" env:"SHIZI_DATABASE_DRIVER"`
	DSN    string `mapstructure:"dsn" env:"SHIZI_DATABASE_DSN"`
	Debug  bool   `mapstructure:"debug"`
}

// CacheConfig sizes the local audio store.
type CacheConfig struct {
	Dir         string `mapstructure:"dir" env:"SHIZI_CACHE_DIR"`
	MemoryMB    int    `mapstructure:"memory_mb"`
	DiskMB      int    `mapstructure:"disk_mb"` // 0 = unbounded
	Compression int    `mapstructure:"compression"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	BufferSize int           `mapstructure:"buffer_size"`
	Volume     float64       `mapstructure:"volume" env:"SHIZI_VOLUME"`
	LoopDelay  time.Duration `mapstructure:"loop_delay"`
	QueueDelay time.Duration `mapstructure:"queue_delay"`
	// Mock plays silence instead of opening the audio device.
	Mock bool `mapstructure:"mock" env:"SHIZI_AUDIO_MOCK"`
}

// RecorderConfig configures microphone capture.
type RecorderConfig struct {
	// Command writes MP3 to stdout until interrupted. Empty picks a
	// platform ffmpeg command.
	Command []string `mapstructure:"command" env:"SHIZI_RECORD_COMMAND" envSeparator:" "`
}

// NetworkConfig tunes remote fetches.
type NetworkConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// BustToken forces a refresh of cached copies for this run.
	BustToken           string  `mapstructure:"bust_token" env:"SHIZI_BUST_TOKEN"`
	PrefetchConcurrency int     `mapstructure:"prefetch_concurrency"`
	PrefetchRate        float64 `mapstructure:"prefetch_rate"`
}

// ServerConfig configures `shizi serve`.
type ServerConfig struct {
	Addr         string   `mapstructure:"addr" env:"SHIZI_ADDR"`
	AllowOrigins []string `mapstructure:"allow_origins" env:"SHIZI_ALLOW_ORIGINS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Content: ContentConfig{Location: "yaml"},
		Storage: StorageConfig{
			Driver: "local",
			S3:     S3Config{Region: "us-east-1"},
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Cache: CacheConfig{
			MemoryMB:    32,
			DiskMB:      0,
			Compression: 3,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			BufferSize: 8192,
			Volume:     1.0,
			LoopDelay:  800 * time.Millisecond,
			QueueDelay: 100 * time.Millisecond,
		},
		Network: NetworkConfig{
			Timeout:             30 * time.Second,
			PrefetchConcurrency: 6,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			AllowOrigins: []string{"*"},
		},
	}
}

// Load decodes v over the defaults, applies environment overrides,
// fills unset directories and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	if err := cfg.resolvePaths(gap.NewScope(gap.User, AppName)); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(scope *gap.Scope) error {
	for _, p := range []*string{&c.Content.Location, &c.Storage.Dir, &c.Cache.Dir, &c.StateDir, &c.Storage.GCS.Credentials} {
		if *p == "" || strings.Contains(*p, "://") || strings.HasPrefix(*p, "{") {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = expanded
	}

	if c.Cache.Dir == "" {
		dir, err := scope.CacheDir()
		if err != nil {
			return fmt.Errorf("could not find cache directory: %w", err)
		}
		c.Cache.Dir = filepath.Join(dir, "audio")
	}

	needsData := c.StateDir == "" ||
		(c.Storage.Driver == "local" && c.Storage.Dir == "") ||
		(c.Database.Driver == "sqlite" && c.Database.DSN == "")
	if !needsData {
		return nil
	}
	dirs, err := scope.DataDirs()
	if err != nil {
		return fmt.Errorf("could not find data directory: %w", err)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("could not find data directory")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(dirs[0], "state")
	}
	if c.Storage.Driver == "local" && c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(dirs[0], "recordings")
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(dirs[0], "shizi.db")
	}
	return nil
}

var (
	validDrivers    = []string{"local", "s3", "gcs"}
	validDatabases  = []string{"sqlite", "postgres", "postgresql"}
	validSampleRate = []int{44100, 48000}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Content.Location == "" {
		return fmt.Errorf("content location cannot be empty")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if !slices.Contains(validDatabases, c.Database.Driver) {
		return fmt.Errorf("invalid database driver '%s': must be one of %v", c.Database.Driver, validDatabases)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for %s", c.Database.Driver)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
		return fmt.Errorf("cache sizes cannot be negative")
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		return fmt.Errorf("cache compression must be between 0 and 22, got %d", c.Cache.Compression)
	}
	if c.Network.Timeout < time.Second {
		return fmt.Errorf("network timeout must be at least 1 second, got %v", c.Network.Timeout)
	}
	if c.Network.PrefetchConcurrency < 1 {
		return fmt.Errorf("prefetch concurrency must be at least 1, got %d", c.Network.PrefetchConcurrency)
	}
	if c.Network.PrefetchRate < 0 {
		return fmt.Errorf("prefetch rate cannot be negative, got %v", c.Network.PrefetchRate)
	}
	return nil
}

// Validate checks if the storage configuration is valid.
func (c *StorageConfig) Validate() error {
	c.Driver = strings.ToLower(c.Driver)
	if !slices.Contains(validDrivers, c.Driver) {
		return fmt.Errorf("invalid driver '%s': must be one of %v", c.Driver, validDrivers)
	}
	switch c.Driver {
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if c.PublicBaseURL == "" {
			return fmt.Errorf("public_base_url is required for s3")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return fmt.Errorf("gcs bucket cannot be empty")
		}
	case "local":
		if c.Dir == "" {
			return fmt.Errorf("local storage dir cannot be empty")
		}
	}
	return nil
}

// Validate checks if the audio configuration is valid.
func (c *AudioConfig) Validate() error {
	if !slices.Contains(validSampleRate, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRate)
	}
	if c.BufferSize < 256 {
		return fmt.Errorf("buffer size must be at least 256, got %d", c.BufferSize)
	}
	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}
	if c.LoopDelay < 0 || c.QueueDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	return nil
}

// IsRemoteContent reports whether content is fetched over HTTP.
func (c *Config) IsRemoteContent() bool {
	return strings.HasPrefix(c.Content.Location, "http://") || strings.HasPrefix(c.Content.Location, "https://")
}
