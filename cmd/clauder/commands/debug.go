package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/approver"
	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/ipc"
	"github.com/relaydev/clauder/internal/permission"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting clauder configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

var debugApproverCmd = &cobra.Command{
	Use:   "approver",
	Short: "Round-trip a permission query through the approve sidecar",
	Long: `Self-test the permission path: start a broker that allows one query,
spawn 'clauder approve' against its socket the way the agent would, and
call the approve tool over MCP. Prints the verdict the agent would see.`,
	RunE: runDebugApprover,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
	debugCmd.AddCommand(debugApproverCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()

	fmt.Println("clauder system paths:")
	fmt.Println()
	fmt.Printf("  Config:       %s\n", paths.Config)
	fmt.Printf("  Data:         %s\n", paths.Data)
	fmt.Printf("  Cache:        %s\n", paths.Cache)
	fmt.Printf("  State:        %s\n", paths.State)
	fmt.Printf("  Storage:      %s\n", paths.StoragePath())
	fmt.Printf("  Permissions:  %s\n", paths.PermissionsPath())

	return nil
}

func runDebugApprover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// A broker that allows exactly what this test asks, without touching
	// the real store.
	prompter := permission.PrompterFunc(func(context.Context, permission.Ask) (permission.Response, error) {
		return permission.AllowOnce, nil
	})
	broker := permission.NewBroker("debug", nil, prompter, nil, time.Minute)

	listener, err := ipc.NewListener(ctx, broker)
	if err != nil {
		return err
	}
	defer listener.Close()
	listener.Start()

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	sidecar := exec.Command(exe, "approve", "--socket", listener.Path())

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "clauder-debug", Version: Version}, nil)
	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: sidecar}, nil)
	if err != nil {
		return fmt.Errorf("connect to approver: %w", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name: approver.ToolName,
		Arguments: map[string]any{
			"tool_name": "Read",
			"input":     map[string]any{"file_path": "debug.txt"},
		},
	})
	if err != nil {
		return fmt.Errorf("call approve tool: %w", err)
	}

	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			fmt.Println(text.Text)
		}
	}
	fmt.Println("approver round trip OK")
	return nil
}
