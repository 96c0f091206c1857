package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var escalationCmd = &cobra.Command{
	Use:     "escalation",
	Aliases: []string{"esc"},
	GroupID: "hypercare",
	Short:   "Escalation rules, evaluation and acknowledgment",
}

var escalationRuleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage a plan's escalation matrix",
}

var escalationRuleSetCmd = &cobra.Command{
	Use:   "set <plan> <severity> <level> <trigger-after> <target-role>",
	Short: "Create or replace the rule for (severity, level)",
	Long: `Create or replace the rule for (severity, level).

Once a plan has any rule for a severity, the built-in matrix stops applying
to that severity. trigger-after accepts minutes (90) or a duration (1h30m).`,
	Args: cobra.ExactArgs(5),
	Run: func(cmd *cobra.Command, args []string) {
		sev, err := types.ParseSeverity(args[1])
		exitOnError(err)
		var level int
		if _, err := fmt.Sscanf(args[2], "%d", &level); err != nil {
			FatalError("level must be an integer, got %q", args[2])
		}
		basis, _ := cmd.Flags().GetString("basis")
		inactive, _ := cmd.Flags().GetBool("inactive")
		rule, err := svc.SetEscalationRule(rootCtx, currentScope(), args[0], orchestration.RuleInput{
			Severity:        sev,
			LevelOrder:      level,
			TriggerAfterMin: mustMinutes("trigger-after", args[3]),
			TargetRole:      args[4],
			Basis:           types.EscalationBasis(basis),
			Active:          !inactive,
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(rule)
			return
		}
		printf("%s %s L%d after %s -> %s\n", ui.RenderPassIcon(), rule.Severity, rule.LevelOrder,
			types.FormatMinutes(rule.TriggerAfterMin), rule.TargetRole)
	},
}

var escalationRuleListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List escalation rules (--effective includes built-in defaults)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		effective, _ := cmd.Flags().GetBool("effective")
		var (
			rules []*types.EscalationRule
			err   error
		)
		if effective {
			rules, err = svc.EffectiveEscalationRules(rootCtx, currentScope(), args[0])
		} else {
			rules, err = svc.ListEscalationRules(rootCtx, currentScope(), args[0])
		}
		exitOnError(err)
		if jsonOutput {
			outputJSON(rules)
			return
		}
		for _, r := range rules {
			src := ""
			if r.PlanID == "" {
				src = ui.RenderMuted(" (default)")
			}
			state := ""
			if !r.IsActive {
				state = ui.RenderMuted(" inactive")
			}
			fmt.Printf("%s L%d  after %-8s from %-15s -> %s%s%s\n", ui.RenderSeverity(r.Severity), r.LevelOrder,
				types.FormatMinutes(r.TriggerAfterMin), r.Basis, r.TargetRole, src, state)
		}
	},
}

var escalationEvaluateCmd = &cobra.Command{
	Use:   "evaluate <plan>",
	Short: "Fire every due escalation rule (safe to re-run)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		events, err := svc.EvaluateEscalations(rootCtx, currentScope(), args[0], parseAtFlag(at))
		exitOnError(err)
		if jsonOutput {
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			printf("No escalations due.\n")
			return
		}
		for _, ev := range events {
			printEscalation(ev)
		}
	},
}

var escalateCmd = &cobra.Command{
	Use:   "raise <incident-id> [reason...]",
	Short: "Escalate an incident manually (next level unless --level)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetInt("level")
		ev, err := svc.Escalate(rootCtx, currentScope(), args[0], level, strings.Join(args[1:], " "), getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(ev)
			return
		}
		printEscalation(ev)
	},
}

var escalationAckCmd = &cobra.Command{
	Use:   "ack <event-id>",
	Short: "Acknowledge an escalation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ev, err := svc.AcknowledgeEscalation(rootCtx, currentScope(), args[0], getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(ev)
			return
		}
		printf("%s Acknowledged by %s at %s\n", ui.RenderPassIcon(), ev.AcknowledgedBy, fmtTime(*ev.AcknowledgedAt))
	},
}

var escalationHistoryCmd = &cobra.Command{
	Use:   "history <incident-id>",
	Short: "List an incident's escalation events",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		events, err := svc.ListEscalationEvents(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(events)
			return
		}
		for _, ev := range events {
			printEscalation(ev)
		}
	},
}

func printEscalation(ev *types.EscalationEvent) {
	how := "manual"
	if ev.IsAuto {
		how = "auto"
	}
	ack := ui.RenderWarn("unacknowledged")
	if ev.AcknowledgedAt != nil {
		ack = ui.RenderPass("ack " + ev.AcknowledgedBy)
	}
	fmt.Printf("  L%d %s -> %s  %s  %s  %s\n", ev.Level, ev.IncidentID, ui.PadRight(ev.TargetRole, 16),
		fmtTime(ev.TriggeredAt), ui.RenderMuted(how), ack)
}

func init() {
	escalationRuleSetCmd.Flags().String("basis", "", "Measure from: reported (default) or last_escalation")
	escalationRuleSetCmd.Flags().Bool("inactive", false, "Store the rule disabled")
	escalationRuleListCmd.Flags().Bool("effective", false, "Show the rules evaluation uses, defaults included")
	escalationRuleCmd.AddCommand(escalationRuleSetCmd, escalationRuleListCmd)

	escalationEvaluateCmd.Flags().String("at", "", "Evaluate at this instant (default: now)")
	escalateCmd.Flags().Int("level", 0, "Level to raise (default: next unfired level)")

	escalationCmd.AddCommand(escalationRuleCmd, escalationEvaluateCmd, escalateCmd, escalationAckCmd, escalationHistoryCmd)
	rootCmd.AddCommand(escalationCmd)
}
