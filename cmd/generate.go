// Package cmd provides the command-line interface for triton.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	outputFile string
	force      bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate sample configuration files",
	Long:  `Generate sample configuration files for the triton SNMPv1 trap receiver.`,
	Example: `# Generate config to stdout
	triton generate

	# Generate config to specific file
	triton generate --output config.yaml

	# Overwrite existing file
	triton generate --output config.yaml --force`,
	RunE: generateConfig,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: stdout)")
	generateCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing file")
}

func generateConfig(cmd *cobra.Command, args []string) error {
	// Sample configuration YAML content
	configYAML := `# Triton SNMPv1 Trap Receiver Configuration
# This is a sample configuration file with default values and examples.
# Modify the values according to your environment and requirements.

server:
  host: "0.0.0.0"
  port: 1062
  queue_size: 256
  buffer_size: 4096
  read_timeout: "30s"

validation:
  max_packet_size: 4096
  max_variables: 100
  # Empty list accepts any community string.
  allowed_communities: []
  # Optional file with one community per line, hot reloaded on change.
  community_file: ""
  blocked_sources: []
  allowed_sources: []

dispatch:
  workers: 2

storage:
  database_type: "sqlite3"
  connection_string: "./triton_traps.db"
  max_connections: 10
  retention_days: 30
  cleanup_interval: "1h"
  enable_indexes: true

notifier:
  enabled: false
  url: "http://alertmanager:9093/api/v2/alerts"
  timeout: "10s"
  queue_size: 128
  max_concurrent: 2
  retry_attempts: 3
  retry_delay: "1s"
  max_retry_delay: "30s"
  backoff_multiplier: 2.0
  jitter: true

metrics:
  enabled: true
  listen_address: ":9090"
  metrics_path: "/metrics"
  health_path: "/health"
  namespace: "triton"

logging:
  level: "info"
  format: "logfmt"
  output: "stdout"
`

	// Output to file or stdout
	if outputFile == "" {
		fmt.Print(configYAML)
		return nil
	}

	// Check if file exists and force flag
	if _, err := os.Stat(outputFile); err == nil && !force {
		return fmt.Errorf("file %s already exists, use --force to overwrite", outputFile)
	}

	// Create directory if needed
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Write to file
	if err := os.WriteFile(outputFile, []byte(configYAML), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Configuration file generated: %s\n", outputFile)
	return nil
}
