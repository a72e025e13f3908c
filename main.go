// Package main provides the entry point for the shizi CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/config"
	"github.com/shizi-app/shizi/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	debug             bool
	wrapWidth         uint
	mockAudio         bool
	contentLocation   string
	bustToken         string

	rootCmd = &cobra.Command{
		Use:   "shizi",
		Short: "Record and play back Chinese literacy lessons",
		Long: paragraph(
			fmt.Sprintf("\nRecord, organize and %s the audio of Chinese literacy lessons.", keyword("play back")),
		),
		SilenceErrors:    true,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
)

// runtimeEnv is what a command needs to run.
type runtimeEnv struct {
	app *app.App
	ui  ui.Config
}

// openApp loads the configuration and opens every component. The caller
// must close the returned app.
func openApp(ctx context.Context, opts app.Options) (*runtimeEnv, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	if mockAudio {
		cfg.Audio.Mock = true
	}
	if contentLocation != "" {
		cfg.Content.Location = contentLocation
	}
	if bustToken != "" {
		cfg.Network.BustToken = bustToken
	}

	uiCfg, err := uiConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.Open(ctx, cfg, log.Default(), opts)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{app: a, ui: uiCfg}, nil
}

// uiConfig reads terminal settings from the environment and the terminal.
func uiConfig() (ui.Config, error) {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %v", err)
	}
	isTerminal := term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
	cfg.Interactive = isTerminal

	cfg.Width = wrapWidth
	if cfg.Width == 0 && isTerminal {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec
			cfg.Width = uint(w) //nolint:gosec
		}
		if cfg.Width > 120 {
			cfg.Width = 120
		}
	}
	if cfg.Width == 0 {
		cfg.Width = 80
	}
	ui.Setup(cfg)
	return cfg, nil
}

// normalizeArg folds full-width input, such as digits typed with a Chinese
// input method, and composes the text.
func normalizeArg(s string) string {
	return strings.TrimSpace(norm.NFC.String(width.Narrow.String(s)))
}

// withApp runs fn with an opened app and a context cancelled on interrupt.
func withApp(opts app.Options, fn func(ctx context.Context, rt *runtimeEnv) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.app.Close(); err != nil {
			log.Warn("Could not close cleanly", "err", err)
		}
	}()
	return fn(ctx, rt)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		_ = closer()
		os.Exit(exitCode(err))
	}
	_ = closer()
}

func printError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	fmt.Fprintln(os.Stderr, errorText("Error: ")+err.Error())
}

// exitCode maps error codes to process exit statuses.
func exitCode(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		return 2
	case apperr.CodeInvalidInput:
		return 3
	case apperr.CodeNetwork:
		return 4
	}
	return 1
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().UintVarP(&wrapWidth, "width", "w", 0, "word-wrap at width (0 detects the terminal)")
	rootCmd.PersistentFlags().BoolVar(&mockAudio, "mock-audio", false, "play silence instead of opening the audio device")
	rootCmd.PersistentFlags().StringVar(&contentLocation, "content", "", "directory or URL of the level documents")
	rootCmd.PersistentFlags().StringVar(&bustToken, "bust", "", "refresh cached recordings with this token")
	_ = rootCmd.PersistentFlags().MarkHidden("mock-audio")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	cobra.OnInitialize(func() {
		if configFile == "" {
			return
		}
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Warn("Could not parse configuration file", "path", configFile, "err", err)
		}
	})

	rootCmd.AddCommand(
		levelsCmd, showCmd, searchCmd, pathCmd,
		playCmd, queueCmd, recordCmd,
		downloadCmd, clearCacheCmd, refreshCmd, statsCmd,
		loginCmd, logoutCmd, progressCmd,
		serveCmd,
		configCmd, manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("SHIZI_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(defaultConfigFile); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
