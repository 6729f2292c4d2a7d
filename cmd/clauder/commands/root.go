// Package commands provides the CLI commands for clauder.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/permission"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "clauder",
	Short: "clauder - interactive agent host",
	Long: `clauder runs coding tasks through an external interactive agent CLI.
It supervises the agent process, answers its in-band questions through a
human, and brokers its permission requests with a cached, persistent store.

Run 'clauder run "task"' for a terminal session, or 'clauder serve' to
expose the agent as an MCP execute_task tool.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("clauder %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(debugCmd)
}

// initLogging configures the global logger. Stdout is never used: in
// serve and approve modes it carries the MCP transport. Without
// --print-logs, logs go to a timestamped file only.
func initLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Output = os.Stderr
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
	}
	logging.Init(cfg)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// permissionRules converts configured rules into broker rules. Outcomes
// were validated by config.Load.
func permissionRules(cfg *config.Config) []permission.Rule {
	rules := make([]permission.Rule, 0, len(cfg.Permission.Rules))
	for _, r := range cfg.Permission.Rules {
		rules = append(rules, permission.Rule{
			Pattern: r.Pattern,
			Outcome: permission.Outcome(r.Outcome),
		})
	}
	return rules
}
