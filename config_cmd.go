package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Level documents: a directory holding contents_L1.yaml, contents_L2.yaml...
# or an http(s) base URL serving them.
content:
  location: "yaml"
  # reload changed documents while serving (directories only)
  watch: false

# Where recordings are stored: local, s3 or gcs.
storage:
  driver: "local"
  # dir: "~/.local/share/shizi/recordings"
  # public_base_url: "https://cdn.example.com/audio"
  s3:
    region: "us-east-1"
    # endpoint: "https://<account>.r2.cloudflarestorage.com"
    # bucket: "shizi-audio"
    # path_style: true
  gcs:
    # bucket: "shizi-audio"
    # credentials: "/path/to/service-account.json"

# Records and learner progress: sqlite or postgres.
database:
  driver: "sqlite"
  # dsn: "host=localhost user=shizi dbname=shizi sslmode=disable"

# Local copies of downloaded recordings.
cache:
  memory_mb: 32
  # 0 keeps recordings until clear-cache
  disk_mb: 0
  # zstd level for the disk tier (1-4)
  compression: 3

audio:
  sample_rate: 44100
  volume: 1.0
  # pause between repetitions of a looped item
  loop_delay: "800ms"
  # pause between items when playing a whole unit
  queue_delay: "100ms"

recorder:
  # command that writes MP3 to stdout until interrupted; empty uses ffmpeg
  # command: ["ffmpeg", "-f", "pulse", "-i", "default", "-f", "mp3", "-"]

network:
  timeout: "30s"
  prefetch_concurrency: 6
  # downloads per second, 0 for no limit
  prefetch_rate: 0

server:
  addr: "127.0.0.1:8787"
  allow_origins: ["*"]
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the shizi config file",
	Long:    paragraph(fmt.Sprintf("\n%s the shizi config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("shizi config\nshizi config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		file := configFile
		if file == "" {
			file = viper.GetViper().ConfigFileUsed()
		}
		if file == "" {
			file = defaultConfigFile
		}
		if err := ensureConfigFile(file); err != nil {
			return err
		}

		c, err := editor.Cmd("Shizi", file)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", file)
		return nil
	},
}

// ensureConfigFile writes the default configuration to file unless it
// already exists.
func ensureConfigFile(file string) error {
	if file == "" {
		return errors.New("no configuration file location")
	}
	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
