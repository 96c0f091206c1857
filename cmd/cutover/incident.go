package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/timeparsing"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var incidentCmd = &cobra.Command{
	Use:     "incident",
	GroupID: "hypercare",
	Short:   "Record and work hypercare incidents",
}

var incidentCreateCmd = &cobra.Command{
	Use:   "create <plan> <title>",
	Short: "Report an incident; SLA deadlines are fixed now",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		sevFlag, _ := flags.GetString("severity")
		description, _ := flags.GetString("description")
		assignee, _ := flags.GetString("assignee")
		reported, _ := flags.GetString("reported-at")

		sev, err := types.ParseSeverity(sevFlag)
		exitOnError(err)
		inc, err := svc.CreateIncident(rootCtx, currentScope(), args[0], orchestration.IncidentInput{
			Title:       strings.Join(args[1:], " "),
			Description: description,
			Severity:    sev,
			Reporter:    getActor(),
			Assignee:    assignee,
			ReportedAt:  parseTimeFlag("reported-at", reported),
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(inc)
			return
		}
		printf("%s %s %s %s\n", ui.RenderPassIcon(), ui.RenderSeverity(inc.Severity), inc.ID, inc.Title)
		printf("  respond by %s, resolve by %s\n", fmtTime(inc.SLAResponseDeadline), fmtTime(inc.SLAResolutionDeadline))
	},
}

var incidentListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List incidents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		var filter types.IncidentFilter
		if v, _ := flags.GetString("status"); v != "" {
			st := types.IncidentStatus(v)
			filter.Status = &st
		}
		if v, _ := flags.GetString("severity"); v != "" {
			sev, err := types.ParseSeverity(v)
			exitOnError(err)
			filter.Severity = &sev
		}
		filter.OpenOnly, _ = flags.GetBool("open")

		list, err := svc.ListIncidents(rootCtx, currentScope(), args[0], filter)
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		if len(list) == 0 {
			printf("No incidents.\n")
			return
		}
		now := time.Now()
		for _, inc := range list {
			line := fmt.Sprintf("%s %s  %s  %s", ui.RenderSeverity(inc.Severity), inc.ID,
				ui.PadRight(ui.RenderStatus(string(inc.Status)), 13), ui.Truncate(inc.Title, 50))
			if st, err := svc.IncidentSLA(rootCtx, currentScope(), inc.ID, now); err == nil && st.Breached() {
				line += " " + ui.RenderFail("SLA breached")
			}
			fmt.Println(line)
		}
	},
}

var incidentShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Show an incident with its SLA state, comments and escalations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, scope := rootCtx, currentScope()
		inc, err := svc.GetIncident(ctx, scope, args[0])
		exitOnError(err)
		st, err := svc.IncidentSLA(ctx, scope, inc.ID, time.Time{})
		exitOnError(err)
		comments, err := svc.ListIncidentComments(ctx, scope, inc.ID)
		exitOnError(err)
		events, err := svc.ListEscalationEvents(ctx, scope, inc.ID)
		exitOnError(err)

		if jsonOutput {
			outputJSON(struct {
				*types.Incident
				SLA         *types.SLAStatus         `json:"sla"`
				Comments    []*types.IncidentComment `json:"comments"`
				Escalations []*types.EscalationEvent `json:"escalations"`
			}{inc, st, comments, events})
			return
		}
		fmt.Printf("%s %s  [%s]\n", ui.RenderSeverity(inc.Severity), inc.Title, ui.RenderStatus(string(inc.Status)))
		fmt.Printf("  %-18s %s\n", "ID:", inc.ID)
		fmt.Printf("  %-18s %s\n", "Reported:", fmtTime(inc.ReportedAt))
		if inc.Assignee != "" {
			fmt.Printf("  %-18s %s\n", "Assignee:", inc.Assignee)
		}
		fmt.Printf("  %-18s %s %s\n", "Respond by:", fmtTime(inc.SLAResponseDeadline), breachMark(st.ResponseBreached))
		fmt.Printf("  %-18s %s %s\n", "Resolve by:", fmtTime(inc.SLAResolutionDeadline), breachMark(st.ResolutionBreached))
		printTime("First response", inc.FirstResponseAt)
		printTime("Resolved", inc.ResolvedAt)
		if len(events) > 0 {
			fmt.Printf("\n%s\n", ui.RenderCategory("Escalations"))
			for _, ev := range events {
				printEscalation(ev)
			}
		}
		if len(comments) > 0 {
			fmt.Printf("\n%s\n", ui.RenderCategory("Comments"))
			for _, c := range comments {
				fmt.Printf("  [%s] %s: %s\n", fmtTime(c.CreatedAt), c.Author, c.Text)
			}
		}
	},
}

var incidentTransitionCmd = &cobra.Command{
	Use:   "transition <incident-id> <status>",
	Short: "Move an incident to another status",
	Long: `Move an incident to another status.

  open -> investigating | resolved
  investigating -> resolved
  resolved -> closed | investigating`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		transitionIncident(args[0], types.IncidentStatus(strings.ToLower(args[1])))
	},
}

func incidentStatusShortcut(use, short string, target types.IncidentStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <incident-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			transitionIncident(args[0], target)
		},
	}
}

func transitionIncident(id string, target types.IncidentStatus) {
	inc, err := svc.TransitionIncident(rootCtx, currentScope(), id, target, getActor())
	exitOnError(err)
	if jsonOutput {
		outputJSON(inc)
		return
	}
	printf("%s %s is now %s\n", ui.RenderPassIcon(), inc.ID, ui.RenderStatus(string(inc.Status)))
}

var incidentRespondCmd = &cobra.Command{
	Use:   "respond <incident-id>",
	Short: "Record the first response without changing status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		inc, err := svc.RespondIncident(rootCtx, currentScope(), args[0], getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(inc)
			return
		}
		printf("%s First response at %s\n", ui.RenderPassIcon(), fmtTime(*inc.FirstResponseAt))
	},
}

var incidentAssignCmd = &cobra.Command{
	Use:   "assign <incident-id> <assignee>",
	Short: "Assign an incident (empty string unassigns)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		inc, err := svc.AssignIncident(rootCtx, currentScope(), args[0], args[1])
		exitOnError(err)
		if jsonOutput {
			outputJSON(inc)
			return
		}
		printf("%s %s assigned to %s\n", ui.RenderPassIcon(), inc.ID, inc.Assignee)
	},
}

var incidentSLACmd = &cobra.Command{
	Use:   "sla <incident-id>",
	Short: "Project an incident's SLA breach state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		st, err := svc.IncidentSLA(rootCtx, currentScope(), args[0], parseAtFlag(at))
		exitOnError(err)
		if jsonOutput {
			outputJSON(st)
			return
		}
		fmt.Printf("%s at %s\n", ui.RenderSeverity(st.Severity), fmtTime(st.EvaluatedAt))
		fmt.Printf("  response   %s %s\n", fmtTime(st.ResponseDeadline), breachMark(st.ResponseBreached))
		fmt.Printf("  resolution %s %s\n", fmtTime(st.ResolutionDeadline), breachMark(st.ResolutionBreached))
	},
}

var incidentCommentCmd = &cobra.Command{
	Use:   "comment <incident-id> <text>",
	Short: "Add a comment",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := svc.AddIncidentComment(rootCtx, currentScope(), args[0], getActor(), strings.Join(args[1:], " "))
		exitOnError(err)
		if jsonOutput {
			outputJSON(c)
			return
		}
		printf("%s Comment added\n", ui.RenderPassIcon())
	},
}

var incidentCommentsCmd = &cobra.Command{
	Use:   "comments <incident-id>",
	Short: "List comments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, err := svc.ListIncidentComments(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(list)
			return
		}
		for _, c := range list {
			fmt.Printf("[%s] %s: %s\n", fmtTime(c.CreatedAt), c.Author, c.Text)
		}
	},
}

var slaCmd = &cobra.Command{
	Use:     "sla",
	GroupID: "hypercare",
	Short:   "Per-plan SLA targets",
}

var slaSetCmd = &cobra.Command{
	Use:   "set <plan> <severity> <response-min> <resolution-min>",
	Short: "Override a severity's targets for one plan (new incidents only)",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		sev, err := types.ParseSeverity(args[1])
		exitOnError(err)
		response := mustMinutes("response-min", args[2])
		resolution := mustMinutes("resolution-min", args[3])
		o, err := svc.SetSLAOverride(rootCtx, currentScope(), args[0], sev, response, resolution)
		exitOnError(err)
		if jsonOutput {
			outputJSON(o)
			return
		}
		printf("%s %s: respond %s, resolve %s\n", ui.RenderPassIcon(), sev,
			types.FormatMinutes(o.Target.ResponseMin), types.FormatMinutes(o.Target.ResolutionMin))
	},
}

var slaShowCmd = &cobra.Command{
	Use:   "show <plan>",
	Short: "Show the targets new incidents would get",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, scope := rootCtx, currentScope()
		eff, err := svc.EffectiveSLATargets(ctx, scope, args[0])
		exitOnError(err)
		overrides, err := svc.ListSLAOverrides(ctx, scope, args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(map[string]any{"effective": eff, "overrides": overrides})
			return
		}
		overridden := make(map[types.Severity]bool, len(overrides))
		for _, o := range overrides {
			overridden[o.Severity] = true
		}
		sevs := make([]types.Severity, 0, len(eff))
		for sev := range eff {
			sevs = append(sevs, sev)
		}
		sort.Slice(sevs, func(i, j int) bool { return sevs[i] < sevs[j] })
		for _, sev := range sevs {
			t := eff[sev]
			mark := ""
			if overridden[sev] {
				mark = ui.RenderMuted(" (plan override)")
			}
			fmt.Printf("%s  respond %-8s resolve %-8s%s\n", ui.RenderSeverity(sev),
				types.FormatMinutes(t.ResponseMin), types.FormatMinutes(t.ResolutionMin), mark)
		}
	},
}

func mustMinutes(name, v string) int {
	n, err := timeparsing.ParseMinutes(v)
	if err != nil {
		FatalError("%s: %v", name, err)
	}
	return n
}

func fmtTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func breachMark(breached bool) string {
	if breached {
		return ui.RenderFail("BREACHED")
	}
	return ui.RenderPass("ok")
}

func init() {
	incidentCreateCmd.Flags().StringP("severity", "s", "", "Severity P1-P4 (required)")
	_ = incidentCreateCmd.MarkFlagRequired("severity")
	incidentCreateCmd.Flags().StringP("description", "d", "", "Description")
	incidentCreateCmd.Flags().String("assignee", "", "Assignee")
	incidentCreateCmd.Flags().String("reported-at", "", "When it was reported (default: now)")

	incidentListCmd.Flags().String("status", "", "Filter by status")
	incidentListCmd.Flags().StringP("severity", "s", "", "Filter by severity")
	incidentListCmd.Flags().Bool("open", false, "Only open or investigating incidents")

	incidentSLACmd.Flags().String("at", "", "Evaluate at this instant (default: now)")

	incidentCmd.AddCommand(incidentCreateCmd, incidentListCmd, incidentShowCmd, incidentTransitionCmd,
		incidentRespondCmd, incidentAssignCmd, incidentSLACmd, incidentCommentCmd, incidentCommentsCmd,
		incidentStatusShortcut("investigate", "Start investigating", types.IncidentInvestigating),
		incidentStatusShortcut("resolve", "Resolve an incident", types.IncidentResolved),
		incidentStatusShortcut("close", "Close a resolved incident", types.IncidentClosed),
	)

	slaCmd.AddCommand(slaSetCmd, slaShowCmd)
	rootCmd.AddCommand(incidentCmd, slaCmd)
}
