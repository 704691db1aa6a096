package commands

import (
	"fmt"

	"github.com/marmos91/nvmeof-gateway/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample nvmeof-gatewayd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/nvmeof-gatewayd/config.yaml. Use --config to specify a
custom path.

Examples:
  # Initialize with default location
  nvmeof-gatewayd init

  # Initialize with custom path
  nvmeof-gatewayd init --config /etc/nvmeof-gatewayd/config.yaml

  # Force overwrite existing config
  nvmeof-gatewayd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file: set gateway.peer_name, gateway.group_name,")
	fmt.Println("     and the object_store bucket this group's peers share.")
	fmt.Println("  2. Start the gateway with: nvmeof-gatewayd start")
	fmt.Printf("  3. Or specify a custom config: nvmeof-gatewayd start --config %s\n", configPath)

	return nil
}
