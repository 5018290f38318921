package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/armchr/testgen/internal/bootstrap"
	"github.com/armchr/testgen/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	appConfigPath    string
	sourceConfigPath string
	workDir          string
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use:   "testgen",
	Short: "Generate compiling, passing JUnit tests for Java methods with an LLM",
	Long: `testgen indexes Java projects, gathers context for a target method and asks a
language model for a JUnit 5 test. Generated tests are compiled and run against the
project; failures are fed back to the model until the test passes or the attempt
budgets run out.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appConfigPath, "app", "app.yaml", "Path to app configuration file")
	rootCmd.PersistentFlags().StringVar(&sourceConfigPath, "source", "source.yaml", "Path to source configuration file, empty to skip")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "Working directory to store files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseLogLevel converts a string log level to zapcore.Level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// loadConfig reads the configuration and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(appConfigPath, sourceConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if workDir != "" {
		cfg.App.WorkDir = workDir
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	cfg.App = cfg.App.GetDefaults()
	if err := os.MkdirAll(cfg.App.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", err)
	}
	return cfg, nil
}

// newLogger logs to the console and to testgen.log in the workdir. The MCP server
// owns stdout, so console output goes to stderr there.
func newLogger(cfg *config.Config, console string) (*zap.Logger, error) {
	cfgZap := zap.NewProductionConfig()
	cfgZap.Level.SetLevel(parseLogLevel(cfg.App.LogLevel))
	cfgZap.OutputPaths = []string{console, filepath.Join(cfg.App.WorkDir, "testgen.log")}
	logger, err := cfgZap.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// withContainer loads configuration, builds the logger and the service container,
// runs fn and tears everything down.
func withContainer(ctx context.Context, console string, opts bootstrap.Options, fn func(*bootstrap.ServiceContainer, *zap.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, console)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	container, err := bootstrap.NewServiceContainer(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("Failed to initialize services", zap.Error(err))
		return err
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	return fn(container, logger)
}
