package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/config"
)

// configurationApplyCmd represents the configuration apply command
var configurationApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reload a running AegisID server's configuration",
	Long: `Validate the current state of the configuration file and then signal the
AegisID server to pick up any changes.

The server re-reads the configuration file and re-activates the stored
review policy. Boot-time settings (port, bind address) require a restart.
Note that this will NOT incorporate changes to environment variables because
Linux process environments are static once a process has started.

Use --test to validate configuration without signalling the server.

Example:
  aegisctl configuration apply
  aegisctl configuration apply --test`,
	Run: func(cmd *cobra.Command, args []string) {
		testMode, _ := cmd.Flags().GetBool("test")

		if err := applyConfiguration(testMode); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to apply configuration: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	configurationCmd.AddCommand(configurationApplyCmd)
	configurationApplyCmd.Flags().Bool("test", false, "Validate configuration without signalling the server")
}

func applyConfiguration(testMode bool) error {
	fmt.Println("Validating configuration...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("Config file: %s\n", cfg.ConfigFilePath())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Check required environment variables
	if os.Getenv("DATABASE_URL") == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if os.Getenv("AEGIS_TOKEN_KEY") == "" {
		return fmt.Errorf("AEGIS_TOKEN_KEY is not set")
	}

	fmt.Println("Configuration is valid.")

	if testMode {
		fmt.Println("Test mode: not signalling server.")
		return nil
	}

	fmt.Println("Sending reload signal to server...")

	pgrep := exec.Command("pgrep", "-f", "aegisctl server")
	output, err := pgrep.Output()
	if err != nil {
		return fmt.Errorf("no running aegisctl server found")
	}

	var pid int
	if _, err := fmt.Sscanf(string(output), "%d", &pid); err != nil {
		return fmt.Errorf("failed to parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	fmt.Printf("Sent reload signal to process %d\n", pid)
	fmt.Println("Server will reload its configuration and review policy.")

	return nil
}
