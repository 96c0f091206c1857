package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	GroupID: "plan",
	Short:   "Create and move cutover plans through their lifecycle",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a draft plan",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		rollback, _ := cmd.Flags().GetString("rollback-deadline")
		weeks, _ := cmd.Flags().GetInt("hypercare-weeks")

		plan, err := svc.CreatePlan(rootCtx, currentScope(), orchestration.PlanInput{
			Name:                   args[0],
			Description:            description,
			PlannedStart:           parseTimeFlag("start", start),
			PlannedEnd:             parseTimeFlag("end", end),
			RollbackDeadline:       parseTimeFlag("rollback-deadline", rollback),
			HypercareDurationWeeks: weeks,
			CreatedBy:              getActor(),
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(plan)
			return
		}
		printf("%s Created plan %s: %s\n", ui.RenderPassIcon(), ui.RenderAccent(plan.Code), plan.Name)
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.PlanFilter
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			st := types.PlanStatus(status)
			filter.Status = &st
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		plans, err := svc.ListPlans(rootCtx, currentScope(), filter)
		exitOnError(err)
		if jsonOutput {
			outputJSON(plans)
			return
		}
		if len(plans) == 0 {
			printf("No plans found.\n")
			return
		}
		for _, p := range plans {
			fmt.Printf("%s  %s  %s\n", ui.PadRight(p.Code, 9), ui.PadRight(ui.RenderStatus(string(p.Status)), 12), p.Name)
		}
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan>",
	Short: "Show a plan with its readiness and critical path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, scope := rootCtx, currentScope()
		plan, err := svc.GetPlan(ctx, scope, args[0])
		exitOnError(err)
		rd, err := svc.PlanReadiness(ctx, scope, plan.ID)
		exitOnError(err)
		cp, err := svc.CriticalPath(ctx, scope, plan.ID)
		exitOnError(err)

		if jsonOutput {
			outputJSON(struct {
				*types.Plan
				Readiness    *orchestration.PlanReadiness `json:"readiness"`
				CriticalPath *types.CriticalPath          `json:"critical_path"`
			}{plan, rd, cp})
			return
		}
		fmt.Printf("%s %s  [%s]\n", ui.RenderAccent(plan.Code), plan.Name, ui.RenderStatus(string(plan.Status)))
		if plan.Description != "" {
			fmt.Printf("  %s\n", plan.Description)
		}
		printTime("Planned start", plan.PlannedStart)
		printTime("Planned end", plan.PlannedEnd)
		printTime("Rollback deadline", plan.RollbackDeadline)
		printTime("Actual start", plan.ActualStart)
		printTime("Actual end", plan.ActualEnd)
		printTime("Hypercare start", plan.HypercareStart)
		printTime("Hypercare end", plan.HypercareEnd)
		fmt.Printf("  %-18s %s (%d go, %d no-go, %d pending, %d waived)\n", "Go/No-Go:",
			renderReadiness(rd.Readiness.Verdict), rd.Readiness.Go, rd.Readiness.NoGo, rd.Readiness.Pending, rd.Readiness.Waived)
		fmt.Printf("  %-18s %d completed\n", "Rehearsals:", rd.CompletedRehearsals)
		fmt.Printf("  %-18s %d tasks, %s\n", "Critical path:", len(cp.TaskIDs), types.FormatMinutes(cp.TotalMinutes))
	},
}

var planUpdateCmd = &cobra.Command{
	Use:   "update <plan>",
	Short: "Edit plan fields (never the status)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var upd orchestration.PlanUpdate
		flags := cmd.Flags()
		if flags.Changed("name") {
			v, _ := flags.GetString("name")
			upd.Name = &v
		}
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			upd.Description = &v
		}
		if flags.Changed("start") {
			v, _ := flags.GetString("start")
			upd.PlannedStart = parseTimeFlag("start", v)
		}
		if flags.Changed("end") {
			v, _ := flags.GetString("end")
			upd.PlannedEnd = parseTimeFlag("end", v)
		}
		if flags.Changed("rollback-deadline") {
			v, _ := flags.GetString("rollback-deadline")
			upd.RollbackDeadline = parseTimeFlag("rollback-deadline", v)
		}
		if flags.Changed("hypercare-weeks") {
			v, _ := flags.GetInt("hypercare-weeks")
			upd.HypercareDurationWeeks = &v
		}
		plan, err := svc.UpdatePlan(rootCtx, currentScope(), args[0], upd)
		exitOnError(err)
		if jsonOutput {
			outputJSON(plan)
			return
		}
		printf("%s Updated %s\n", ui.RenderPassIcon(), plan.Code)
	},
}

var planTransitionCmd = &cobra.Command{
	Use:   "transition <plan> <status>",
	Short: "Move a plan to another lifecycle status",
	Long: `Move a plan to another lifecycle status.

  draft -> approved -> [rehearsal ->] ready -> executing -> completed -> hypercare -> closed
  executing -> rolled_back -> draft

ready needs a completed rehearsal, executing needs no pending Go/No-Go items,
and closed needs every mandatory exit criterion met plus an approving sign-off.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		transitionPlan(args[0], types.PlanStatus(strings.ToLower(args[1])))
	},
}

// planStatusShortcut builds `cutover plan <verb> <plan>` for one target.
func planStatusShortcut(use, short string, target types.PlanStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <plan>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			transitionPlan(args[0], target)
		},
	}
}

func transitionPlan(ref string, target types.PlanStatus) {
	switch target {
	case types.PlanRolledBack:
		abortUnlessConfirmed("Roll back "+ref+"?", "The go-live is abandoned and the plan returns to draft afterwards.")
	case types.PlanClosed:
		abortUnlessConfirmed("Close hypercare for "+ref+"?", "A closed plan cannot be edited or reopened.")
	}
	plan, err := svc.TransitionPlan(rootCtx, currentScope(), ref, target, getActor())
	exitOnError(err)
	if jsonOutput {
		outputJSON(plan)
		return
	}
	printf("%s %s is now %s\n", ui.RenderPassIcon(), plan.Code, ui.RenderStatus(string(plan.Status)))
}

var planReadinessCmd = &cobra.Command{
	Use:   "readiness <plan>",
	Short: "Show the aggregated Go/No-Go verdict",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rd, err := svc.PlanReadiness(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(rd)
			return
		}
		fmt.Printf("%s %s\n", rd.Code, renderReadiness(rd.Readiness.Verdict))
		fmt.Printf("  go %d  no-go %d  pending %d  waived %d  (of %d)\n",
			rd.Readiness.Go, rd.Readiness.NoGo, rd.Readiness.Pending, rd.Readiness.Waived, rd.Readiness.Total)
		fmt.Printf("  completed rehearsals: %d\n", rd.CompletedRehearsals)
	},
}

var planCriticalPathCmd = &cobra.Command{
	Use:     "critical-path <plan>",
	Aliases: []string{"cp"},
	Short:   "Show the longest chain of runbook tasks",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, scope := rootCtx, currentScope()
		cp, err := svc.CriticalPath(ctx, scope, args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(cp)
			return
		}
		tasks, err := svc.ListTasks(ctx, scope, cp.PlanID)
		exitOnError(err)
		byID := make(map[string]*types.Task, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t
		}
		if len(cp.TaskIDs) == 0 {
			printf("No tasks.\n")
			return
		}
		for i, id := range cp.TaskIDs {
			t := byID[id]
			if t == nil {
				continue
			}
			fmt.Printf("%2d. %s %s  %s\n", i+1, ui.PadRight(taskLabel(t), 14), ui.Truncate(t.Title, 50),
				ui.RenderMuted(types.FormatMinutes(t.PlannedDurationMin)))
		}
		fmt.Printf("%s %s\n", ui.RenderCategory("Total:"), types.FormatMinutes(cp.TotalMinutes))
	},
}

func renderReadiness(v types.ReadinessVerdict) string {
	switch v {
	case types.ReadinessGo:
		return ui.RenderPass("GO")
	case types.ReadinessNoGo:
		return ui.RenderFail("NO-GO")
	case types.ReadinessPending:
		return ui.RenderWarn("PENDING")
	}
	return ui.RenderMuted("NO ITEMS")
}

func printTime(label string, t *time.Time) {
	if t == nil {
		return
	}
	fmt.Printf("  %-18s %s\n", label+":", t.Local().Format("2006-01-02 15:04 MST"))
}

func addPlanFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("description", "d", "", "Plan description")
	cmd.Flags().String("start", "", "Planned start (RFC3339, +2d, \"next saturday 18:00\")")
	cmd.Flags().String("end", "", "Planned end")
	cmd.Flags().String("rollback-deadline", "", "Point of no return for a rollback decision")
	cmd.Flags().Int("hypercare-weeks", 0, "Hypercare window in weeks (default: plan.hypercare-weeks)")
}

func init() {
	addPlanFieldFlags(planCreateCmd)
	addPlanFieldFlags(planUpdateCmd)
	planUpdateCmd.Flags().String("name", "", "Plan name")

	planListCmd.Flags().StringP("status", "s", "", "Filter by status")
	planListCmd.Flags().Int("limit", 0, "Maximum number of plans")

	planCmd.AddCommand(planCreateCmd, planListCmd, planShowCmd, planUpdateCmd, planTransitionCmd,
		planReadinessCmd, planCriticalPathCmd,
		planStatusShortcut("approve", "Approve a draft plan", types.PlanApproved),
		planStatusShortcut("execute", "Start go-live execution", types.PlanExecuting),
		planStatusShortcut("rollback", "Roll back an executing plan", types.PlanRolledBack),
		planStatusShortcut("close", "Close hypercare", types.PlanClosed),
	)
	rootCmd.AddCommand(planCmd)
}
