package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/feeders"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "MODLINK"

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("modlink v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	corpusDir  string
	logLevel   string
}

// NewRootCommand creates the root command for the modlink CLI
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "modlink",
		Short: "modlink - integration tooling for modules sharing cells, channels and registries",
		Long: `modlink works with integration descriptors: the per-module documents that
list the channels, cells, registries and capability contracts a module shares.
It plans new modules against the descriptor corpus, validates, compares and
converts descriptors, and serves a read-only inspection API.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.corpusDir, "corpus", "", "Descriptor corpus directory (overrides corpus_dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides log_level)")

	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewDescriptorCommand())
	cmd.AddCommand(NewFlagsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// loadConfig applies defaults, the config file, MODLINK_* environment
// variables and finally flag overrides.
func (o *globalOptions) loadConfig() (*modlink.Config, error) {
	var fs []modlink.Feeder
	if o.configFile != "" {
		f, err := feeders.ForFile(o.configFile)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	fs = append(fs, feeders.NewAffixedEnvFeeder(EnvPrefix, ""))

	cfg := &modlink.Config{}
	if err := modlink.LoadConfig(cfg, fs...); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.corpusDir == "" && o.logLevel == "" {
		return cfg, nil
	}
	if o.corpusDir != "" {
		cfg.CorpusDir = o.corpusDir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", modlink.ErrConfigValidationFailed, err)
	}
	return cfg, nil
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg *modlink.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
