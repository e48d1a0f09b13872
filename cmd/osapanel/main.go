package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/osapanel/pkg/config"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose bool
	flagDebug   bool
	flagConfig  string
)

// panelConfig is loaded before any subcommand runs.
var (
	panelConfig *config.Config
	logFile     *os.File
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		// If Execute() returns an error, logging may or may not be initialized yet.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "osapanel",
		Short: "OSA control panel",
		Long: strings.TrimSpace(`
osapanel - control panel for the OSA repository analysis tool

Configure a run (repository, mode, feature flags, optional article), launch
the tool, follow its output and inspect the result: exit status, generated
reports and the About section. The same pipeline is available over HTTP with
'osapanel serve'.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPanelConfig(flagConfig)
			if err != nil {
				return err
			}
			panelConfig = cfg
			return initLogging(cfg.Paths.Log)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogFile()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Panel configuration file (.toml, .yaml)")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newFlagsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "osapanel version: %s\n", version)
		},
	}
}

func loadPanelConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initLogging installs the default slog handler. With a log path the panel
// log is appended to that file as well as stderr.
func initLogging(logPath string) error {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	var out io.Writer = os.Stderr
	closeLogFile()
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String(), "file", logPath)
	return nil
}

func closeLogFile() {
	if logFile != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		_ = logFile.Close()
		logFile = nil
	}
}

type stdOutWriteCloser struct {
	w io.Writer
}

func (s stdOutWriteCloser) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s stdOutWriteCloser) Close() error {
	// stdout should not be closed
	return nil
}
