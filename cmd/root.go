// Package cmd provides the command-line interface for triton.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/spf13/cobra"

	"github.com/geekxflood/triton/internal/events"
	"github.com/geekxflood/triton/internal/listener"
	"github.com/geekxflood/triton/internal/metrics"
	"github.com/geekxflood/triton/internal/notifier"
	"github.com/geekxflood/triton/internal/storage"
)

var (
	cfgFile string
	version = "dev" // Will be set by build flags
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "triton",
	Version: version,
	Short:   "SNMPv1 trap receiver",
	Long: `Triton is an SNMPv1 trap receiver. It listens for trap datagrams over UDP,
decodes the BER wire encoding, validates and persists the traps, and exposes
counters for everything it sees.`,
	Example: `# Start the trap listener with default config
	triton

	# Start with specific configuration file
	triton --config /etc/triton/config.yaml

	# Generate sample configuration
	triton generate --output config.yaml

	# Validate configuration
	triton validate --config config.yaml

	# Send a test trap to a running listener
	triton send --target 127.0.0.1:1062`,
	RunE: runServer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	manager, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	defer manager.Close()

	if err := initLogging(manager); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Shutdown()

	logger := logging.GetLogger()
	logger.Info("starting triton", "version", version)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal, stopping server")
		cancel()
	}()

	m, err := metrics.NewMetrics(manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	store, err := storage.NewStorage(manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	l, err := listener.NewListener(manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create trap listener: %w", err)
	}
	l.SetMetrics(m)

	n, err := notifier.NewNotifier(manager, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notifier: %w", err)
	}

	dispatcher, err := events.NewDispatcher(manager, logger, l.Packets(), store, m)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	if n.Enabled() {
		dispatcher.SetAlertSink(n.Enqueue)
	}

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("failed to start trap listener: %w", err)
	}

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()

	if err := l.Stop(); err != nil {
		logger.Error("error stopping trap listener", "error", err)
	}

	// The listener closed its queue, so the dispatcher drains and exits.
	dispatcher.Wait()

	if err := n.Stop(); err != nil {
		logger.Error("error stopping notifier", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("error closing storage", "error", err)
	}
	if err := m.Stop(); err != nil {
		logger.Error("error stopping metrics server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func initLogging(manager config.Provider) error {
	level, _ := manager.GetString("logging.level", "info")
	format, _ := manager.GetString("logging.format", "logfmt")
	output, _ := manager.GetString("logging.output", "stdout")

	return logging.Init(logging.Config{
		Level:  level,
		Format: format,
		Output: output,
	})
}

func loadConfig() (config.Manager, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		// Try default locations
		defaultPaths := []string{
			"config.yaml",
			"config.yml",
			"/etc/triton/config.yaml",
			"/etc/triton/config.yml",
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	options := config.Options{
		SchemaPath: "cmd/schemas/config.cue",
		ConfigPath: configPath,
	}

	if configPath == "" {
		fmt.Println("No configuration file found, using schema defaults")
	} else {
		fmt.Printf("Loading configuration from: %s\n", configPath)
	}

	manager, err := config.NewManager(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	return manager, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
}
