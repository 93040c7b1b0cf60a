package commands

import (
	"github.com/spf13/cobra"

	"github.com/vx-daniel/barf/internal/logging"
)

var tickDir string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single orchestrator step and exit",
	Long: `Tick performs exactly one selection/drive/audit-cycle step and
exits, for cron-style invocation instead of a long-running process.`,
	RunE: runTick,
}

func init() {
	tickCmd.Flags().StringVar(&tickDir, "directory", "", "Project directory (default: current directory)")
}

func runTick(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(tickDir)
	if err != nil {
		return err
	}

	o, _, err := buildOrchestrator(cmd.Context(), workDir)
	if err != nil {
		return err
	}

	ran, err := o.Tick(cmd.Context())
	if err != nil {
		return err
	}
	logging.Info().Bool("ran", ran).Msg("tick: complete")
	return nil
}
