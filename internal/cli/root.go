// Package cli provides the command-line interface for notebase.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/observability"
	"github.com/relicta-tech/notebase/internal/security"
)

var (
	// Version information set by main.
	versionInfo struct {
		Version string
		Commit  string
		Date    string
	}

	// Global flags
	cfgFile    string
	verbose    bool
	outputJSON bool
	noColor    bool
	logLevel   string

	// Global config
	cfg *config.Config

	// Logger
	logger *log.Logger

	// logFile holds the log file handle for cleanup
	logFile *os.File

	// Styles
	styles = struct {
		Title   lipgloss.Style
		Success lipgloss.Style
		Error   lipgloss.Style
		Warning lipgloss.Style
		Info    lipgloss.Style
		Subtle  lipgloss.Style
		Bold    lipgloss.Style
	}{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bold:    lipgloss.NewStyle().Bold(true),
	}
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "notebase",
	Short: "Event-sourced notes and todos",
	Long: `notebase keeps notes and todos in an append-only event journal and
answers queries from a SQLite read database kept up to date after every
command.

Notes are filed under a tree of categories; todos have their own category
tree. The read database can be checked, repaired and rebuilt from the
journal at any time.

Get started with 'notebase config init' or just 'notebase category create Inbox'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that never touch the stores
		switch cmd.Name() {
		case "version", "help", "init":
			return nil
		}
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: notebase.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every committed event")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}

	overrides := map[string]any{}
	if logLevel != "" {
		overrides["output.log_level"] = logLevel
	}
	if len(overrides) > 0 {
		if err := loader.MergeConfig(overrides); err != nil {
			return err
		}
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	validator := config.NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return err
	}
	for _, w := range validator.Warnings() {
		logger.Debug("config warning", "warning", w)
	}
	return nil
}

// applyGlobalFlags applies global CLI flags to the configuration.
func applyGlobalFlags() {
	if verbose {
		cfg.Output.Verbose = true
	}
	if outputJSON {
		cfg.Output.JSON = true
	}
	if noColor || !cfg.Output.Color {
		cfg.Output.Color = false
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// configureLogger sets the logger format and level from the configuration.
// Configured secrets never reach the log.
func configureLogger() {
	var w io.Writer = os.Stderr
	if logFile != nil {
		w = logFile
	}
	logger.SetOutput(security.FromConfig(cfg).Writer(w))
	if cfg.Output.JSON {
		logger.SetFormatter(log.JSONFormatter)
	} else if !cfg.Output.Color {
		logger.SetFormatter(log.TextFormatter)
	}

	switch cfg.Output.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.WarnLevel)
	}
}

// configureLogFile sets up log file output if specified.
func configureLogFile() error {
	if cfg.Output.LogFile == "" || logFile != nil {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(cfg.Output.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return rperrors.IOWrap(err, "cli.configureLogFile", "failed to open log file")
	}
	logger.SetOutput(security.FromConfig(cfg).Writer(logFile))
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if err := loadAndValidateConfig(); err != nil {
		return err
	}
	applyGlobalFlags()
	configureLogger()
	return configureLogFile()
}

// Cleanup closes any open resources. Should be called before program exit.
func Cleanup() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// slogger adapts the charm logger for the library layers.
func slogger() *slog.Logger {
	return slog.New(logger)
}

// openApp initializes the container for a command. The verbose notifier is
// subscribed before any command runs.
var openApp = func(ctx context.Context) (*container.Container, error) {
	if cfg == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}
	return newApp(ctx, cfg)
}

// openReadOnlyApp is openApp for long-running readers. The journal is opened
// without the writer lock so other commands keep working.
func openReadOnlyApp(ctx context.Context) (*container.Container, error) {
	if cfg == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}
	readOnly := *cfg
	readOnly.Storage.ReadOnly = true
	return newApp(ctx, &readOnly)
}

func newApp(ctx context.Context, c *config.Config) (*container.Container, error) {
	app, err := container.NewInitialized(ctx, c,
		container.WithLogger(slogger()),
		container.WithMetrics(observability.NewMetrics(versionInfo.Version)))
	if err != nil {
		return nil, err
	}
	if c.Output.Verbose {
		app.Bus().Subscribe("cli.verbose", func(_ context.Context, e eventsource.Event) error {
			fmt.Fprintln(errOut(), styles.Subtle.Render(fmt.Sprintf("• %s %s", e.EventName(), e.AggregateID().Short())))
			return nil
		})
	}
	return app, nil
}

func closeApp(app *container.Container) {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil {
		printWarning(fmt.Sprintf("Failed to close stores: %v", err))
	}
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(out(), "notebase %s\n", versionInfo.Version)
		if verbose {
			fmt.Fprintf(out(), "  commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out(), "  built:  %s\n", versionInfo.Date)
		}
	},
}

// Helper functions for output

func out() io.Writer    { return rootCmd.OutOrStdout() }
func errOut() io.Writer { return rootCmd.ErrOrStderr() }

func printSuccess(msg string) {
	fmt.Fprintln(out(), styles.Success.Render("✓ "+msg))
}

func printError(msg string) {
	fmt.Fprintln(errOut(), styles.Error.Render("✗ "+msg))
}

func printWarning(msg string) {
	fmt.Fprintln(errOut(), styles.Warning.Render("⚠ "+msg))
}

func printInfo(msg string) {
	fmt.Fprintln(out(), styles.Info.Render("ℹ "+msg))
}

func printTitle(msg string) {
	fmt.Fprintln(out(), styles.Title.Render(msg))
}

func printSubtle(msg string) {
	fmt.Fprintln(out(), styles.Subtle.Render(msg))
}

// printJSONOutput writes v as indented JSON.
func printJSONOutput(v any) error {
	enc := json.NewEncoder(out())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return rperrors.IOWrap(err, "cli.printJSONOutput", "failed to encode output")
	}
	return nil
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return outputJSON || (cfg != nil && cfg.Output.JSON)
}

// parseID parses a positional id argument.
func parseID(label, raw string) (eventsource.ID, error) {
	id, err := eventsource.ParseID(raw)
	if err != nil {
		return "", rperrors.ValidationWrap(err, "cli.parseID", fmt.Sprintf("invalid %s id %q", label, raw))
	}
	return id, nil
}

// parseOptionalID parses an id flag where empty means "none".
func parseOptionalID(label, raw string) (eventsource.ID, error) {
	if raw == "" {
		return "", nil
	}
	return parseID(label, raw)
}
