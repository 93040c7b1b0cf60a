package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vx-daniel/barf/internal/agentclient"
	"github.com/vx-daniel/barf/internal/audit"
	"github.com/vx-daniel/barf/internal/config"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/internal/logging"
	"github.com/vx-daniel/barf/internal/orchestrator"
)

var runDir string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the orchestrator loop until interrupted",
	Long: `Run repeatedly selects eligible issues, drives each through the
plan/build/verify cycle, and manages the project's audit-gate cycle,
until interrupted with SIGINT or SIGTERM.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "directory", "", "Project directory (default: current directory)")
}

func runRun(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	o, watcher, err := buildOrchestrator(cmd.Context(), workDir)
	if err != nil {
		return err
	}
	if watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logging.Info().Msg("run: shutting down")
		cancel()
	}()

	logging.Info().Str("directory", workDir).Msg("run: starting orchestrator loop")
	return o.RunForever(ctx)
}

// buildOrchestrator loads configuration, wires the store/agent/auditor
// collaborators, and returns a ready-to-use Orchestrator plus its
// config/issue file watcher (nil if it could not be started).
func buildOrchestrator(ctx context.Context, workDir string) (*orchestrator.Orchestrator, *config.Watcher, error) {
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, err
	}

	issuesDir := resolveDir(workDir, cfg.IssuesDir)
	planDir := resolveDir(workDir, cfg.PlanDir)
	barfDir := resolveDir(workDir, cfg.BarfDir)
	cfg.BarfDir = barfDir

	store := issuestore.New(issuesDir, planDir, barfDir)

	agent, err := agentclient.NewAnthropicClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	auditor := audit.New(audit.Deps{Store: store, Agent: agent, Model: cfg.AuditModel})
	o := orchestrator.New(cfg, workDir, store, agent, auditor)

	watcher, werr := config.NewWatcher(workDir, issuesDir)
	if werr != nil {
		logging.Warn().Err(werr).Msg("run: config watcher unavailable")
		watcher = nil
	}

	return o, watcher, nil
}

func resolveDir(workDir, dir string) string {
	if dir == "" {
		return workDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workDir, dir)
}
