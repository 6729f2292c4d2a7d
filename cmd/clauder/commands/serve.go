package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/interact"
	"github.com/relaydev/clauder/internal/logging"
	"github.com/relaydev/clauder/internal/metrics"
	"github.com/relaydev/clauder/internal/permission"
	"github.com/relaydev/clauder/internal/prompt"
	"github.com/relaydev/clauder/internal/server"
	"github.com/relaydev/clauder/internal/storage"
	"github.com/relaydev/clauder/pkg/mcpserver/taskrunner"
)

var (
	serveListen      string
	serveDir         string
	serveNoStatus    bool
	serveAutoApprove bool
	serveAutoDeny    bool
)

// serveShutdownGrace bounds how long shutdown waits for in-flight
// requests after a signal.
const serveShutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the agent as an MCP execute_task tool over stdio",
	Long: `Serve an MCP server on stdio with a single execute_task tool.

Pending questions and permission requests are listed on the status HTTP
API and answered via POST, unless --auto-approve or --auto-deny selects
an unattended policy.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Status API address (default from config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveNoStatus, "no-status", false, "Disable the status HTTP API")
	serveCmd.Flags().BoolVar(&serveAutoApprove, "auto-approve", false, "Approve every permission, answer interactions with defaults")
	serveCmd.Flags().BoolVar(&serveAutoDeny, "auto-deny", false, "Deny every permission, answer interactions with defaults")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	log := logging.Component("serve")
	log.Info().Str("workspace", workDir).Msg("starting clauder server")

	store := permission.NewStore(appConfig.Permission.StorePath)
	history := executor.NewHistory(storage.New(paths.StoragePath()))
	hub := prompt.NewHub()

	// Pick up allow-always grants written by other clauder processes.
	if watcher, werr := permission.NewWatcher(store); werr != nil {
		log.Warn().Err(werr).Msg("permission store watcher unavailable")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	collector := metrics.NewCollector(metrics.MustNewMetrics(nil))
	defer collector.Attach()()

	// Signal-driven shutdown cancels every in-flight run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newRunner(ctx, appConfig, workDir, store, history, hub)

	var statusSrv *server.Server
	if !serveNoStatus {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = appConfig.Server.Listen
		if serveListen != "" {
			srvCfg.Addr = serveListen
		}
		statusSrv = server.New(srvCfg, server.Deps{
			History: history,
			Store:   store,
			Hub:     hub,
		})
		go func() {
			log.Info().Str("addr", srvCfg.Addr).Msg("status API listening")
			if serr := statusSrv.Start(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				log.Error().Err(serr).Msg("status server failed")
			}
		}()
	}

	// ServeStdio returns when the MCP client closes stdin.
	serveErr := make(chan error, 1)
	go func() { serveErr <- taskrunner.Serve(runner) }()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		err = nil
	}

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
		defer cancel()
		if serr := statusSrv.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("status server shutdown")
		}
	}
	return err
}

// newRunner wires execute_task calls to the executor. Each run's context
// is cancelled by either the MCP call's context or the serve process's
// signal context, so a SIGTERM terminates in-flight agents.
func newRunner(serveCtx context.Context, appConfig *config.Config, workDir string,
	store *permission.Store, history *executor.History, hub *prompt.Hub,
) taskrunner.Runner {
	var interactP interact.Prompter = hub
	var permP permission.Prompter = permission.PrompterFunc(hub.AskPermission)
	if serveAutoApprove || serveAutoDeny {
		auto := prompt.Auto{Approve: !serveAutoDeny}
		interactP, permP = auto, permission.PrompterFunc(auto.AskPermission)
	}

	return taskrunner.RunnerFunc(func(callCtx context.Context, req taskrunner.Request) (*executor.Result, error) {
		model, err := appConfig.ModelForTier(req.Tier)
		if err != nil {
			return nil, err
		}
		workspace := req.Workspace
		if workspace == "" {
			workspace = workDir
		}

		opts := executor.Options{
			Prompt:          req.Prompt,
			Workspace:       workspace,
			AgentPath:       appConfig.AgentPath,
			Model:           model,
			Tier:            req.Tier,
			SkipPermissions: req.SkipPermissions,

			Choices:       toggled(req.Choices, appConfig.Interaction.ChoicesEnabled()),
			Questions:     toggled(req.Questions, appConfig.Interaction.QuestionsEnabled()),
			Confirmations: toggled(req.Confirmations, appConfig.Interaction.ConfirmationsEnabled()),

			Interact:   interactP,
			Permission: permP,
			Store:      store,
			Rules:      permissionRules(appConfig),
			History:    history,

			ExecutionTimeout:   appConfig.Timeouts.ExecutionDuration(),
			InactivityTimeout:  appConfig.Timeouts.InactivityDuration(),
			HeartbeatInterval:  appConfig.Timeouts.HeartbeatDuration(),
			InteractionTimeout: appConfig.Timeouts.InteractionDuration(),
			PermissionTimeout:  appConfig.Timeouts.PermissionDuration(),

			SocketRetries:    appConfig.Socket.Retries,
			SocketRetryDelay: appConfig.Socket.RetryDelay(),
		}
		runCtx, cancel := context.WithCancel(callCtx)
		defer cancel()
		unbind := context.AfterFunc(serveCtx, cancel)
		defer unbind()

		return executor.Run(runCtx, opts)
	})
}

// toggled resolves a per-request tri-state toggle against its configured
// default.
func toggled(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
