package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var rehearsalCmd = &cobra.Command{
	Use:     "rehearsal",
	GroupID: "plan",
	Short:   "Schedule and run cutover rehearsals",
}

var rehearsalCreateCmd = &cobra.Command{
	Use:   "create <plan>",
	Short: "Schedule the plan's next rehearsal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		r, err := svc.CreateRehearsal(rootCtx, currentScope(), args[0], notes)
		exitOnError(err)
		if jsonOutput {
			outputJSON(r)
			return
		}
		printf("%s Scheduled rehearsal #%d (%s)\n", ui.RenderPassIcon(), r.Number, r.ID)
	},
}

var rehearsalListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List rehearsals with their metrics",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, err := svc.ListRehearsals(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		for _, r := range list {
			line := fmt.Sprintf("#%-3d %s  %s", r.Number, ui.PadRight(ui.RenderStatus(string(r.Status)), 12), r.ID)
			if m := r.Metrics; m != nil {
				line += fmt.Sprintf("  %d/%d completed, variance %.1f%%", m.CompletedCount, m.TotalTasks, m.VariancePct)
				if m.RunbookRevisionNeeded {
					line += " " + ui.RenderWarn("revise runbook")
				}
			}
			fmt.Println(line)
		}
	},
}

type rehearsalFunc func(ctx context.Context, scope types.Scope, id, actor string) (*types.Rehearsal, error)

func rehearsalActionCmd(use, short string, fn func() rehearsalFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rehearsal-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			r, err := fn()(rootCtx, currentScope(), args[0], getActor())
			exitOnError(err)
			if jsonOutput {
				outputJSON(r)
				return
			}
			printf("%s Rehearsal #%d is now %s\n", ui.RenderPassIcon(), r.Number, ui.RenderStatus(string(r.Status)))
			if m := r.Metrics; m != nil {
				printf("  %d tasks: %d completed, %d failed, %d skipped\n", m.TotalTasks, m.CompletedCount, m.FailedCount, m.SkippedCount)
				printf("  executed: planned %s, actual %s (%+.1f%%) of %s runbook total\n",
					types.FormatMinutes(m.MeasuredPlannedMin), types.FormatMinutes(m.ActualTotalMin), m.VariancePct,
					types.FormatMinutes(m.PlannedTotalMin))
			}
		},
	}
}

var goNoGoCmd = &cobra.Command{
	Use:     "gonogo",
	Aliases: []string{"go-no-go"},
	GroupID: "exec",
	Short:   "Manage the Go/No-Go checklist",
}

var goNoGoAddCmd = &cobra.Command{
	Use:   "add <plan> <criterion>",
	Short: "Add a checklist item (verdict starts pending)",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		domain, _ := cmd.Flags().GetString("domain")
		owner, _ := cmd.Flags().GetString("owner")
		item, err := svc.AddGoNoGoItem(rootCtx, currentScope(), args[0], orchestration.GoNoGoInput{
			Criterion:    strings.Join(args[1:], " "),
			SourceDomain: domain,
			Owner:        owner,
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(item)
			return
		}
		printf("%s Added %s\n", ui.RenderPassIcon(), item.ID)
	},
}

var goNoGoSetCmd = &cobra.Command{
	Use:   "set <item-id> <go|no_go|waived|pending>",
	Short: "Record a verdict",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		evidence, _ := cmd.Flags().GetString("evidence")
		verdict := types.Verdict(strings.ReplaceAll(strings.ToLower(args[1]), "-", "_"))
		item, err := svc.SetVerdict(rootCtx, currentScope(), args[0], verdict, evidence, getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(item)
			return
		}
		printf("%s %s: %s\n", ui.RenderPassIcon(), item.Criterion, ui.RenderStatus(string(item.Verdict)))
	},
}

var goNoGoListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List checklist items",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		items, err := svc.ListGoNoGoItems(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(items)
			return
		}
		for _, it := range items {
			fmt.Printf("%s  %s  %s %s\n", it.ID, ui.PadRight(ui.RenderStatus(string(it.Verdict)), 9),
				it.Criterion, ui.RenderMuted(it.SourceDomain))
		}
	},
}

func init() {
	rehearsalCreateCmd.Flags().String("notes", "", "Notes")
	rehearsalCmd.AddCommand(rehearsalCreateCmd, rehearsalListCmd,
		rehearsalActionCmd("start", "Start a planned rehearsal", func() rehearsalFunc { return svc.StartRehearsal }),
		rehearsalActionCmd("complete", "Complete a rehearsal and snapshot its metrics", func() rehearsalFunc { return svc.CompleteRehearsal }),
		rehearsalActionCmd("cancel", "Cancel a rehearsal", func() rehearsalFunc { return svc.CancelRehearsal }),
	)

	goNoGoAddCmd.Flags().String("domain", "", "Source domain (e.g. testing, data-migration)")
	goNoGoAddCmd.Flags().String("owner", "", "Item owner")
	goNoGoSetCmd.Flags().String("evidence", "", "Evidence for the verdict")
	goNoGoCmd.AddCommand(goNoGoAddCmd, goNoGoSetCmd, goNoGoListCmd)

	rootCmd.AddCommand(rehearsalCmd, goNoGoCmd)
}
