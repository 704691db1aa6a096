package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	statusOutput  string
	statusPidFile string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Display the current status of the nvmeof-gatewayd process.

This command checks the PID file recorded by 'nvmeof-gatewayd start' and
confirms the process is still alive by sending it signal 0.

Examples:
  # Check status (uses default PID file)
  nvmeof-gatewayd status

  # Check status with a custom PID file
  nvmeof-gatewayd status --pid-file /var/run/nvmeof-gatewayd.pid

  # Output as JSON
  nvmeof-gatewayd status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nvmeof-gatewayd/nvmeof-gatewayd.pid)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// GatewayStatus represents the gateway process status information.
type GatewayStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message string `json:"message" yaml:"message"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := GatewayStatus{
		Running: false,
		Message: "Gateway is not running",
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			process, err := os.FindProcess(pid)
			if err == nil {
				// On Unix, FindProcess always succeeds; signal 0 is the liveness probe.
				if err := process.Signal(syscall.Signal(0)); err == nil {
					status.Running = true
					status.PID = pid
					status.Message = "Gateway is running"
				}
			}
		}
	}

	switch strings.ToLower(statusOutput) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		out, err := yaml.Marshal(status)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status GatewayStatus) {
	fmt.Println()
	fmt.Println("nvmeof-gatewayd Status")
	fmt.Println("======================")
	fmt.Println()

	if status.Running {
		fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		fmt.Printf("  PID:        %d\n", status.PID)
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
