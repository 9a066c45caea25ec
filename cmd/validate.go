// Package cmd provides the command-line interface for triton.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/geekxflood/common/config"
	"github.com/spf13/cobra"
)

var (
	checkStorage bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration files",
	Long:  `Validate configuration files and optionally check storage path accessibility.`,
	Example: `# Validate configuration file
	triton validate --config config.yaml

	# Validate configuration and check the storage path
	triton validate --config config.yaml --check-storage

	# Validate using default config locations
	triton validate`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&checkStorage, "check-storage", false, "Also validate storage path accessibility")
}

func validateConfig(cmd *cobra.Command, args []string) error {
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

		if configPath == "" {
			return fmt.Errorf("no configuration file found, specify with --config or create config.yaml")
		}
	}

	fmt.Printf("Validating configuration file: %s\n", configPath)

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	// Create config manager to validate the configuration
	manager, err := config.NewManager(config.Options{
		SchemaPath: "cmd/schemas/config.cue",
		ConfigPath: configPath,
	})
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	defer manager.Close()

	// Validate the configuration
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration syntax is valid")

	// Validate the storage path if requested
	if checkStorage {
		if err := validateStoragePath(manager); err != nil {
			return fmt.Errorf("storage validation failed: %w", err)
		}
		fmt.Println("✓ Storage path is writable")
	}

	fmt.Println("✓ Configuration validation completed successfully")
	return nil
}

func validateStoragePath(manager config.Provider) error {
	dbPath, err := manager.GetString("storage.connection_string", "./triton_traps.db")
	if err != nil {
		return fmt.Errorf("storage.connection_string not found in configuration: %w", err)
	}

	dir := filepath.Dir(dbPath)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("storage directory does not exist: %s", dir)
	}
	if err != nil {
		return fmt.Errorf("cannot access storage directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path parent is not a directory: %s", dir)
	}

	// Probe write access without touching the database file itself
	probe, err := os.CreateTemp(dir, ".triton-probe-*")
	if err != nil {
		return fmt.Errorf("storage directory is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	fmt.Printf("  Database path: %s\n", dbPath)
	return nil
}
