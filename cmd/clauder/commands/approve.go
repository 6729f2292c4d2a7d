package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/approver"
	"github.com/relaydev/clauder/internal/ipc"
)

var (
	approveSocket     string
	approveTimeout    time.Duration
	approveRetries    int
	approveRetryDelay time.Duration
)

// approveCmd is spawned by the agent CLI, not by users: the run's MCP
// config names it as the permission prompt tool. It forwards each
// permission request over the run's socket and prints nothing itself;
// stdout belongs to the MCP transport.
var approveCmd = &cobra.Command{
	Use:    "approve",
	Short:  "Serve the permission prompt tool for a running agent",
	Hidden: true,
	RunE:   runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveSocket, "socket", "", "Permission socket path")
	approveCmd.Flags().DurationVar(&approveTimeout, "timeout", ipc.DefaultResponseTimeout, "Per-query response timeout")
	approveCmd.Flags().IntVar(&approveRetries, "retries", ipc.DefaultDialAttempts, "Socket connection attempts")
	approveCmd.Flags().DurationVar(&approveRetryDelay, "retry-delay", ipc.DefaultDialDelay, "Initial backoff between connection attempts")
}

func runApprove(cmd *cobra.Command, args []string) error {
	if approveSocket == "" {
		return fmt.Errorf("--socket is required")
	}

	client := ipc.NewClient(ipc.ClientConfig{
		SocketPath: approveSocket,
		Attempts:   approveRetries,
		Delay:      approveRetryDelay,
		Timeout:    approveTimeout,
	})

	workDir, err := GetWorkDir("")
	if err != nil {
		workDir = ""
	}
	return approver.Serve(client, workDir)
}
