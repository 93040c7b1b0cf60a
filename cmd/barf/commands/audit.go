package commands

import (
	"github.com/spf13/cobra"

	"github.com/vx-daniel/barf/internal/auditgate"
	"github.com/vx-daniel/barf/internal/config"
	"github.com/vx-daniel/barf/internal/logging"
	"github.com/vx-daniel/barf/pkg/types"
)

var auditDir string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Force an audit-gate trigger",
	Long: `Audit triggers the audit-gate from running to draining, the same
effect a dashboard's audit button has (spec source "cli"). A later
'barf tick' or 'barf run' drives the gate the rest of the way through
draining -> auditing -> fixing/running.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditDir, "directory", "", "Project directory (default: current directory)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(auditDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	gate := auditgate.New(resolveDir(workDir, cfg.BarfDir))
	state, triggered, err := gate.Trigger(types.TriggerCLI)
	if err != nil {
		return err
	}
	logging.Info().Bool("triggered", triggered).Str("state", string(state.State)).Msg("audit: trigger requested")
	return nil
}
