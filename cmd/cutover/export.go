package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/export"
	"github.com/steveyegge/cutover/internal/ui"
)

var planExportCmd = &cobra.Command{
	Use:   "export <plan>",
	Short: "Write a JSON snapshot of a plan plus a checksum manifest",
	Long: `Write a JSON snapshot of a plan with its tasks, dependencies, rehearsals,
Go/No-Go items, incidents, SLA overrides, escalation rules, exit criteria
and sign-offs. A <file>.manifest.json with counts and a SHA-256 is written
next to it; check it later with 'cutover plan verify-export'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")
		snap, err := export.Collect(rootCtx, svc, currentScope(), args[0], getActor(), time.Now())
		exitOnError(err)
		if out == "" {
			out = filepath.Join(".cutover", "exports", snap.Plan.Code+".json")
		}
		m, err := export.Write(out, snap)
		if err != nil {
			FatalError("export: %v", err)
		}
		if jsonOutput {
			outputJSON(m)
			return
		}
		printf("%s Exported %s to %s (%d tasks, %d incidents)\n", ui.RenderPassIcon(),
			ui.RenderAccent(m.PlanCode), out, m.Counts["tasks"], m.Counts["incidents"])
		printf("  sha256 %s\n", ui.RenderMuted(m.SHA256))
	},
}

var planVerifyExportCmd = &cobra.Command{
	Use:   "verify-export <manifest>",
	Short: "Check a plan snapshot against its manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := export.Verify(args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(m)
			return
		}
		printf("%s %s matches its manifest (%s, exported %s)\n", ui.RenderPassIcon(), m.SnapshotPath,
			m.PlanCode, m.ExportedAt.Format(time.RFC3339))
	},
}

func init() {
	planExportCmd.Flags().StringP("output", "o", "", "Snapshot path (default .cutover/exports/<code>.json)")
	planCmd.AddCommand(planExportCmd, planVerifyExportCmd)
}
