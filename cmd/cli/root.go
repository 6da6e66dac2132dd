// Package cli provides the command-line interface of newhosts: scanning and
// watching a network, managing saved networks and inspecting the detection
// history.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/newhosts/internal/config"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
)

const envPrefix = "NEWHOSTS"

var (
	cfgFile   string
	dbPath    string
	verbosity int
	quiet     bool
)

// Build information, set with -ldflags "-X github.com/anstrom/newhosts/cmd/cli.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newhosts",
		Short: "Find new devices in your network",
		Long: `newhosts probes every address of a local IPv4 range with ping, arping and
a reverse name lookup, records what it found and compares the result with
earlier scans to show new hosts and hosts whose MAC address or name changed.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $XDG_CONFIG_HOME/newhosts/config.yaml)")
	cmd.PersistentFlags().StringVar(&dbPath, "database", "", "detections database file (sqlite)")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "show information messages (repeat for debug output)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "show errors only")
	cmd.Flags().BoolP("version", "V", false, "show version number")

	// Bind flags to viper
	if err := viper.BindPFlag("database.path", cmd.PersistentFlags().Lookup("database")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind database flag: %v\n", err)
	}

	cmd.AddCommand(newScanCmd(), newNetworksCmd(), newHistoryCmd(), newSchemaCmd())
	return cmd
}

// exitCodeError ends the process with a specific status without printing
// an error message.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	os.Exit(run(rootCmd, os.Stderr))
}

func run(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var exitErr *exitCodeError
	if stderrors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.IsConfigError(err) {
		return 2
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig locates the config file and reads environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "newhosts"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbosity > 0 {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// getConfigFilePath returns the config file in use, or an empty string when
// running on defaults.
func getConfigFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return viper.ConfigFileUsed()
}

// loadConfig loads the configuration file, applies global flag and
// environment overrides and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := getConfigFilePath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := viper.GetString("database.path"); path != "" {
		cfg.Database.Path = path
	}
	if level := viper.GetString("logging.level"); level != "" {
		cfg.Logging.Level = logging.LogLevel(level)
	}
	if quiet {
		cfg.Logging.Level = logging.LevelForVerbosity(0)
	} else if verbosity > 0 {
		cfg.Logging.Level = logging.LevelForVerbosity(verbosity + 1)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := initLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging initializes structured logging based on configuration.
func initLogging(cfg logging.Config) error {
	cfg.AddSource = cfg.AddSource || cfg.Level == logging.LevelDebug
	logger, err := logging.New(cfg)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to initialize logging", err)
	}
	logging.SetDefault(logger)
	logging.Debug("Structured logging initialized", "level", cfg.Level, "format", cfg.Format)
	return nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}
