package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/runbook"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var runbookCmd = &cobra.Command{
	Use:     "runbook",
	GroupID: "plan",
	Short:   "Import runbook definition files",
	Long: `Import runbook definition files (TOML, YAML or JSON).

A runbook declares scope items, tasks keyed by a short name, and
dependencies between task keys:

  [[scope_item]]
  key  = "fi"
  name = "Finance"

  [[task]]
  key          = "freeze"
  title        = "Freeze FI postings"
  scope_item   = "fi"
  duration_min = 30

  [[task]]
  key        = "extract"
  title      = "Extract open items"
  scope_item = "fi"
  duration   = "1h30m"
  after      = ["freeze"]`,
}

var runbookImportCmd = &cobra.Command{
	Use:   "import <plan> <file>",
	Short: "Add a runbook's tasks and dependencies to a plan (all or nothing)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := runbook.Load(args[1])
		exitOnError(err)
		res, err := svc.ImportRunbook(rootCtx, currentScope(), args[0], def, getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(res)
			return
		}
		printf("%s Imported %d tasks and %d dependencies into %s\n", ui.RenderPassIcon(),
			len(res.Tasks), res.Dependencies, args[0])
		printf("  scope items: %d created, %d reused\n", res.ScopeItemsCreated, res.ScopeItemsReused)
		if cp := res.CriticalPath; cp != nil {
			printf("  critical path: %d tasks, %s\n", len(cp.TaskIDs), types.FormatMinutes(cp.TotalMinutes))
		}
	},
}

var runbookValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a runbook file without touching the database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		def, err := runbook.Load(args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(map[string]any{
				"valid":        true,
				"name":         def.Name,
				"format":       def.Format,
				"tasks":        len(def.Tasks),
				"dependencies": len(def.Edges()),
			})
			return
		}
		fmt.Printf("%s %s: %d tasks, %d dependencies (%s)\n", ui.RenderPassIcon(), def.Name,
			len(def.Tasks), len(def.Edges()), def.Format)
	},
}

func init() {
	runbookCmd.AddCommand(runbookImportCmd, runbookValidateCmd)
	rootCmd.AddCommand(runbookCmd)
}
