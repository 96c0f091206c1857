package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var exitCmd = &cobra.Command{
	Use:     "exit",
	GroupID: "hypercare",
	Short:   "Hypercare exit criteria and sign-off",
}

var exitAddCmd = &cobra.Command{
	Use:   "add <plan> <name>",
	Short: "Add an exit criterion",
	Long: `Add an exit criterion.

Auto criteria name a metric evaluated from the plan's incidents:
  no_open_critical   zero open P1/P2 incidents
  no_open_incidents  zero open incidents
  sla_compliance     share of incidents within both SLA targets >= --threshold

Manual criteria are set with 'cutover exit set'.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		metric, _ := flags.GetString("metric")
		description, _ := flags.GetString("description")
		threshold, _ := flags.GetFloat64("threshold")
		optional, _ := flags.GetBool("optional")
		typ := types.CriterionManual
		if metric != "" {
			typ = types.CriterionAuto
		}
		c, err := svc.AddExitCriterion(rootCtx, currentScope(), args[0], orchestration.CriterionInput{
			Name:        strings.Join(args[1:], " "),
			Description: description,
			Type:        typ,
			Metric:      types.ExitMetric(metric),
			Threshold:   threshold,
			Mandatory:   !optional,
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		printf("%s Added %s criterion %s\n", ui.RenderPassIcon(), c.Type, c.ID)
	},
}

var exitListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List exit criteria as stored",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, err := svc.ListExitCriteria(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		printCriteria(list)
	},
}

var exitEvaluateCmd = &cobra.Command{
	Use:   "evaluate <plan>",
	Short: "Recompute and store auto criteria",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		list, err := svc.EvaluateExitCriteria(rootCtx, currentScope(), args[0], parseAtFlag(at), getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		printCriteria(list)
	},
}

var exitSetCmd = &cobra.Command{
	Use:   "set <criterion-id> <met|not_met|pending>",
	Short: "Set a manual criterion's status",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		evidence, _ := cmd.Flags().GetString("evidence")
		status := types.CriterionStatus(strings.ReplaceAll(strings.ToLower(args[1]), "-", "_"))
		c, err := svc.SetExitCriterionStatus(rootCtx, currentScope(), args[0], status, evidence, getActor(), false)
		exitOnError(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		printf("%s %s: %s\n", ui.RenderPassIcon(), c.Name, ui.RenderStatus(string(c.Status)))
	},
}

var exitSignoffCmd = &cobra.Command{
	Use:   "signoff <plan> <approved|rejected|override_approved>",
	Short: "Record an exit sign-off decision",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		comment, _ := cmd.Flags().GetString("comment")
		approver, _ := cmd.Flags().GetString("approver")
		if approver == "" {
			approver = getActor()
		}
		decision := types.SignoffDecision(strings.ReplaceAll(strings.ToLower(args[1]), "-", "_"))
		so, err := svc.RecordSignoff(rootCtx, currentScope(), args[0], approver, decision, comment)
		exitOnError(err)
		if jsonOutput {
			outputJSON(so)
			return
		}
		printf("%s %s signed off: %s\n", ui.RenderPassIcon(), so.Approver, so.Decision)
	},
}

var exitSignoffsCmd = &cobra.Command{
	Use:   "signoffs <plan>",
	Short: "List sign-offs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, err := svc.ListSignoffs(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		for _, so := range list {
			fmt.Printf("%s  %-18s %s %s\n", fmtTime(so.SignedAt), so.Decision, so.Approver, ui.RenderMuted(so.Comment))
		}
	},
}

var exitStatusCmd = &cobra.Command{
	Use:   "status <plan>",
	Short: "Show whether hypercare could close now (nothing is stored)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		st, err := svc.ExitStatus(rootCtx, currentScope(), args[0], parseAtFlag(at))
		exitOnError(err)
		if jsonOutput {
			outputJSON(st)
			return
		}
		verdict := ui.RenderPass("can close")
		if !st.CanClose {
			verdict = ui.RenderFail("cannot close")
		}
		fmt.Printf("%s [%s] %s\n", st.Code, ui.RenderStatus(string(st.Status)), verdict)
		printCriteria(st.Criteria)
		for _, b := range st.Blockers {
			fmt.Printf("  %s %s\n", ui.RenderFailIcon(), b)
		}
	},
}

func printCriteria(list []*types.ExitCriterion) {
	for _, c := range list {
		icon := ui.RenderWarnIcon()
		switch c.Status {
		case types.CriterionMet:
			icon = ui.RenderPassIcon()
		case types.CriterionNotMet:
			icon = ui.RenderFailIcon()
		}
		mandatory := ""
		if !c.Mandatory {
			mandatory = ui.RenderMuted(" (optional)")
		}
		line := fmt.Sprintf("  %s %s%s", icon, c.Name, mandatory)
		if c.Evidence != "" {
			line += ui.RenderMuted(" - " + c.Evidence)
		}
		fmt.Println(line)
	}
}

func init() {
	exitAddCmd.Flags().String("metric", "", "Auto metric (omit for a manual criterion)")
	exitAddCmd.Flags().StringP("description", "d", "", "Description")
	exitAddCmd.Flags().Float64("threshold", 0, "sla_compliance threshold in percent (default: exit.sla-threshold-pct)")
	exitAddCmd.Flags().Bool("optional", false, "Do not block closing hypercare")
	exitEvaluateCmd.Flags().String("at", "", "Evaluate at this instant (default: now)")
	exitStatusCmd.Flags().String("at", "", "Evaluate at this instant (default: now)")
	exitSetCmd.Flags().String("evidence", "", "Evidence")
	exitSignoffCmd.Flags().String("comment", "", "Comment (required for override_approved)")
	exitSignoffCmd.Flags().String("approver", "", "Approver (default: actor)")

	exitCmd.AddCommand(exitAddCmd, exitListCmd, exitEvaluateCmd, exitSetCmd, exitSignoffCmd, exitSignoffsCmd, exitStatusCmd)
	rootCmd.AddCommand(exitCmd)
}
