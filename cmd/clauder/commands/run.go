package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/event"
	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/permission"
	"github.com/relaydev/clauder/internal/prompt"
	"github.com/relaydev/clauder/internal/storage"
)

var (
	runTier            string
	runModel           string
	runDir             string
	runSkipPermissions bool
	runAuto            bool
	runAutoDeny        bool
	runNoChoices       bool
	runNoQuestions     bool
	runNoConfirmations bool
	runJSON            bool
	runQuiet           bool
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run one agent task from the terminal",
	Long: `Run one task through the agent, answering its questions and
permission requests interactively.

Examples:
  clauder run "Fix the bug in main.go"
  clauder run --tier critical "Refactor the storage layer"
  clauder run --auto "Run the test suite"  # unattended, approve everything
  clauder run --skip-permissions "Explain this code"`,
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVarP(&runTier, "tier", "t", "", "Capability tier (fast|standard|critical)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Agent model, overriding the tier mapping")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().BoolVar(&runSkipPermissions, "skip-permissions", false, "Run the agent with permission checks disabled")
	runCmd.Flags().BoolVar(&runAuto, "auto", false, "Unattended mode: approve permissions, answer interactions with defaults")
	runCmd.Flags().BoolVar(&runAutoDeny, "auto-deny", false, "Unattended mode: deny permissions, answer interactions with defaults")
	runCmd.Flags().BoolVar(&runNoChoices, "no-choices", false, "Disable the multiple-choice protocol")
	runCmd.Flags().BoolVar(&runNoQuestions, "no-questions", false, "Disable the free-text question protocol")
	runCmd.Flags().BoolVar(&runNoConfirmations, "no-confirmations", false, "Disable the confirmation protocol")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run result as JSON")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output")
}

func runTask(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	task := strings.Join(args, " ")
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("task required. Usage: clauder run \"your task\"")
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	model := runModel
	if model == "" {
		model, err = appConfig.ModelForTier(runTier)
		if err != nil {
			return err
		}
	}

	// Cancel the run on Ctrl-C; the executor reports it as cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var interactP interact.Prompter
	var permP permission.Prompter
	if runAuto || runAutoDeny {
		auto := prompt.Auto{Approve: !runAutoDeny}
		interactP, permP = auto, permission.PrompterFunc(auto.AskPermission)
	} else {
		term := prompt.NewTerminal()
		interactP, permP = term, permission.PrompterFunc(term.AskPermission)
	}

	if !runQuiet && !runJSON {
		defer printProgress()()
	}

	opts := executor.Options{
		Prompt:          task,
		Workspace:       workDir,
		AgentPath:       appConfig.AgentPath,
		Model:           model,
		Tier:            runTier,
		SkipPermissions: runSkipPermissions,

		Choices:       appConfig.Interaction.ChoicesEnabled() && !runNoChoices,
		Questions:     appConfig.Interaction.QuestionsEnabled() && !runNoQuestions,
		Confirmations: appConfig.Interaction.ConfirmationsEnabled() && !runNoConfirmations,

		Interact:   interactP,
		Permission: permP,
		Store:      permission.NewStore(appConfig.Permission.StorePath),
		Rules:      permissionRules(appConfig),
		History:    executor.NewHistory(storage.New(paths.StoragePath())),

		ExecutionTimeout:   appConfig.Timeouts.ExecutionDuration(),
		InactivityTimeout:  appConfig.Timeouts.InactivityDuration(),
		HeartbeatInterval:  appConfig.Timeouts.HeartbeatDuration(),
		InteractionTimeout: appConfig.Timeouts.InteractionDuration(),
		PermissionTimeout:  appConfig.Timeouts.PermissionDuration(),

		SocketRetries:    appConfig.Socket.Retries,
		SocketRetryDelay: appConfig.Socket.RetryDelay(),
	}

	result, err := executor.Run(ctx, opts)
	if err != nil {
		return err
	}
	return printResult(result)
}

// printProgress mirrors run.progress and run.heartbeat events to stdout
// until the returned function is called.
func printProgress() func() {
	unsubProgress := event.Subscribe(event.RunProgress, func(e event.Event) {
		if d, ok := e.Data.(event.RunProgressData); ok && d.Text != "" {
			fmt.Println(d.Text)
		}
	})
	unsubHeartbeat := event.Subscribe(event.RunHeartbeat, func(e event.Event) {
		if d, ok := e.Data.(event.RunHeartbeatData); ok {
			fmt.Printf("Still working... (%.0fs elapsed)\n", d.Elapsed)
		}
	})
	return func() {
		unsubProgress()
		unsubHeartbeat()
	}
}

func printResult(result *executor.Result) error {
	if runJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if !result.Success {
			return fmt.Errorf("run %s", result.State)
		}
		return nil
	}

	if result.Success {
		fmt.Println()
		fmt.Println(result.Output)
		fmt.Printf("\nCompleted in %.1fs", result.Elapsed)
		if result.PermissionsRequested > 0 {
			fmt.Printf(" (%d/%d permissions granted)", result.PermissionsGranted, result.PermissionsRequested)
		}
		fmt.Println()
		return nil
	}
	if result.Output != "" {
		fmt.Println()
		fmt.Println(result.Output)
	}
	return fmt.Errorf("run %s: %s", result.State, result.Error)
}
