package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vx-daniel/barf/internal/auditgate"
	"github.com/vx-daniel/barf/internal/config"
	"github.com/vx-daniel/barf/internal/issuestore"
	"github.com/vx-daniel/barf/internal/logging"
	"github.com/vx-daniel/barf/internal/server"
	"github.com/vx-daniel/barf/internal/sessionindex"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status HTTP API",
	Long: `Serve exposes issue, audit-gate, and session-index state over
HTTP, for a dashboard to poll or stream. It drives no work itself; run
it alongside 'barf run' or scheduled 'barf tick' invocations.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Project directory (default: current directory)")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	barfDir := resolveDir(workDir, cfg.BarfDir)
	store := issuestore.New(resolveDir(workDir, cfg.IssuesDir), resolveDir(workDir, cfg.PlanDir), barfDir)
	gate := auditgate.New(barfDir)
	idx := sessionindex.New(barfDir)

	serverCfg := server.DefaultConfig()
	serverCfg.Port = servePort
	srv := server.New(serverCfg, store, gate, idx)

	watcher, werr := config.NewWatcher(workDir, resolveDir(workDir, cfg.IssuesDir))
	if werr != nil {
		logging.Warn().Err(werr).Msg("serve: config watcher unavailable")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	go func() {
		logging.Info().Int("port", servePort).Msg("serve: listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("serve: server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("serve: shutdown error")
	}
	return nil
}
