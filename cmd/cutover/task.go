package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/timeparsing"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "exec",
	Short:   "Manage runbook tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <plan> <title>",
	Short: "Add a runbook task to a plan",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		scopeItem, _ := flags.GetString("scope-item")
		key, _ := flags.GetString("key")
		description, _ := flags.GetString("description")
		owner, _ := flags.GetString("owner")
		duration, _ := flags.GetString("duration")
		sequence, _ := flags.GetInt("sequence")

		minutes, err := timeparsing.ParseMinutes(duration)
		if err != nil {
			FatalError("--duration: %v", err)
		}
		task, err := svc.AddTask(rootCtx, currentScope(), args[0], orchestration.TaskInput{
			ScopeItemID:        scopeItem,
			Key:                key,
			Title:              args[1],
			Description:        description,
			Owner:              owner,
			PlannedDurationMin: minutes,
			Sequence:           sequence,
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(task)
			return
		}
		printf("%s Added task %s (seq %d, %s)\n", ui.RenderPassIcon(), ui.RenderAccent(taskLabel(task)),
			task.Sequence, types.FormatMinutes(task.PlannedDurationMin))
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List a plan's tasks in sequence order",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tasks, err := svc.ListTasks(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			printf("No tasks.\n")
			return
		}
		width := ui.TerminalWidth(100)
		for _, t := range tasks {
			line := fmt.Sprintf("%4d %s %s %s %s", t.Sequence, ui.RenderCriticalMarker(t.IsCriticalPath),
				ui.PadRight(taskLabel(t), 14), ui.PadRight(ui.RenderStatus(string(t.Status)), 12),
				ui.Truncate(t.Title, width-50))
			if t.DelayMinutes != nil && *t.DelayMinutes > 0 {
				line += " " + ui.RenderWarn(fmt.Sprintf("+%dm", *t.DelayMinutes))
			}
			fmt.Println(line)
		}
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		t, err := svc.GetTask(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(t)
			return
		}
		fmt.Printf("%s %s  [%s]\n", ui.RenderAccent(taskLabel(t)), t.Title, ui.RenderStatus(string(t.Status)))
		fmt.Printf("  %-14s %s\n", "ID:", t.ID)
		fmt.Printf("  %-14s %d\n", "Sequence:", t.Sequence)
		fmt.Printf("  %-14s %s\n", "Planned:", types.FormatMinutes(t.PlannedDurationMin))
		if t.Owner != "" {
			fmt.Printf("  %-14s %s\n", "Owner:", t.Owner)
		}
		printTime("Actual start", t.ActualStart)
		printTime("Actual end", t.ActualEnd)
		if t.DelayMinutes != nil {
			fmt.Printf("  %-14s %+d min\n", "Delay:", *t.DelayMinutes)
		}
		if t.IsCriticalPath {
			fmt.Printf("  %s\n", ui.RenderWarn("on the critical path"))
		}
		if t.IssueNote != "" {
			fmt.Printf("\n%s\n%s\n", ui.RenderCategory("Notes"), t.IssueNote)
		}
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Edit a task's title, description, owner or duration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, scope := rootCtx, currentScope()
		flags := cmd.Flags()
		var upd orchestration.TaskUpdate
		changed := false
		for flag, dst := range map[string]**string{"title": &upd.Title, "description": &upd.Description, "owner": &upd.Owner} {
			if flags.Changed(flag) {
				v, _ := flags.GetString(flag)
				*dst = &v
				changed = true
			}
		}
		var (
			task *types.Task
			err  error
		)
		if changed {
			task, err = svc.UpdateTask(ctx, scope, args[0], upd)
			exitOnError(err)
		}
		if flags.Changed("duration") {
			v, _ := flags.GetString("duration")
			minutes, perr := timeparsing.ParseMinutes(v)
			if perr != nil {
				FatalError("--duration: %v", perr)
			}
			task, err = svc.UpdateTaskDuration(ctx, scope, args[0], minutes, getActor())
			exitOnError(err)
		}
		if task == nil {
			FatalError("nothing to update (use --title, --description, --owner or --duration)")
		}
		if jsonOutput {
			outputJSON(task)
			return
		}
		printf("%s Updated %s\n", ui.RenderPassIcon(), taskLabel(task))
	},
}

var taskNoteCmd = &cobra.Command{
	Use:   "note <task-id> <text>",
	Short: "Append a line to a task's issue log",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		task, err := svc.AppendTaskNote(rootCtx, currentScope(), args[0], strings.Join(args[1:], " "), getActor())
		exitOnError(err)
		if jsonOutput {
			outputJSON(task)
			return
		}
		printf("%s Noted on %s\n", ui.RenderPassIcon(), taskLabel(task))
	},
}

var taskTransitionCmd = &cobra.Command{
	Use:   "transition <task-id> <status>",
	Short: "Move a task to another status",
	Long: `Move a task to another status.

  not_started -> in_progress | skipped
  in_progress -> completed | failed | rolled_back
  failed      -> in_progress | skipped
  skipped, rolled_back -> not_started

A task can start only when every predecessor is completed or skipped.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		transitionTask(args[0], types.TaskStatus(strings.ToLower(args[1])))
	},
}

func taskStatusShortcut(use, short string, target types.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			transitionTask(args[0], target)
		},
	}
}

func transitionTask(id string, target types.TaskStatus) {
	task, err := svc.TransitionTask(rootCtx, currentScope(), id, target, getActor())
	exitOnError(err)
	if jsonOutput {
		outputJSON(task)
		return
	}
	msg := fmt.Sprintf("%s %s is now %s", ui.RenderPassIcon(), taskLabel(task), ui.RenderStatus(string(task.Status)))
	if task.Status == types.TaskCompleted && task.DelayMinutes != nil {
		msg += fmt.Sprintf(" (%+d min against plan)", *task.DelayMinutes)
	}
	printf("%s\n", msg)
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its dependency edges",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(svc.DeleteTask(rootCtx, currentScope(), args[0], getActor()))
		if jsonOutput {
			outputJSON(map[string]string{"deleted": args[0]})
			return
		}
		printf("%s Deleted %s\n", ui.RenderPassIcon(), args[0])
	},
}

var depCmd = &cobra.Command{
	Use:     "dep",
	GroupID: "exec",
	Short:   "Manage task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <predecessor-id> <successor-id>",
	Short: "Make a task wait for another",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lag, _ := cmd.Flags().GetInt("lag")
		dep, err := svc.AddDependency(rootCtx, currentScope(), args[0], args[1], lag, getActor())
		if err != nil {
			var cyc *types.CycleDetectedError
			if !jsonOutput && errors.As(err, &cyc) {
				FatalErrorWithHint(err.Error(), "path: "+strings.Join(cyc.Path, " -> "))
			}
			exitOnError(err)
		}
		if jsonOutput {
			outputJSON(dep)
			return
		}
		printf("%s %s -> %s\n", ui.RenderPassIcon(), dep.PredecessorID, dep.SuccessorID)
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <predecessor-id> <successor-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(svc.RemoveDependency(rootCtx, currentScope(), args[0], args[1], getActor()))
		if jsonOutput {
			outputJSON(map[string]string{"predecessor_id": args[0], "successor_id": args[1], "status": "removed"})
			return
		}
		printf("%s Removed %s -> %s\n", ui.RenderPassIcon(), args[0], args[1])
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <plan>",
	Short: "List a plan's dependencies",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deps, err := svc.ListDependencies(rootCtx, currentScope(), args[0])
		exitOnError(err)
		if jsonOutput {
			outputJSON(deps)
			return
		}
		for _, d := range deps {
			lag := ""
			if d.LagMinutes > 0 {
				lag = ui.RenderMuted(fmt.Sprintf(" (lag %s)", types.FormatMinutes(d.LagMinutes)))
			}
			fmt.Printf("%s -> %s%s\n", d.PredecessorID, d.SuccessorID, lag)
		}
	},
}

var scopeItemCmd = &cobra.Command{
	Use:     "scope-item",
	Aliases: []string{"scope"},
	GroupID: "plan",
	Short:   "Manage the program's scope items",
}

var scopeItemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a scope item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		owner, _ := cmd.Flags().GetString("owner")
		item, err := svc.CreateScopeItem(rootCtx, currentScope(), orchestration.ScopeItemInput{
			Name: args[0], Description: description, Owner: owner,
		})
		exitOnError(err)
		if jsonOutput {
			outputJSON(item)
			return
		}
		printf("%s Added scope item %s (%s)\n", ui.RenderPassIcon(), item.Name, item.ID)
	},
}

var scopeItemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scope items",
	Run: func(cmd *cobra.Command, args []string) {
		items, err := svc.ListScopeItems(rootCtx, currentScope())
		exitOnError(err)
		if jsonOutput {
			outputJSON(items)
			return
		}
		for _, it := range items {
			fmt.Printf("%s  %s  %s\n", it.ID, ui.PadRight(it.Name, 24), ui.RenderMuted(it.Owner))
		}
	},
}

var scopeItemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a scope item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		var upd orchestration.ScopeItemUpdate
		for flag, dst := range map[string]**string{"name": &upd.Name, "description": &upd.Description, "owner": &upd.Owner} {
			if flags.Changed(flag) {
				v, _ := flags.GetString(flag)
				*dst = &v
			}
		}
		item, err := svc.UpdateScopeItem(rootCtx, currentScope(), args[0], upd)
		exitOnError(err)
		if jsonOutput {
			outputJSON(item)
			return
		}
		printf("%s Updated %s\n", ui.RenderPassIcon(), item.Name)
	},
}

var scopeItemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an unused scope item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(svc.DeleteScopeItem(rootCtx, currentScope(), args[0]))
		if jsonOutput {
			outputJSON(map[string]string{"deleted": args[0]})
			return
		}
		printf("%s Deleted %s\n", ui.RenderPassIcon(), args[0])
	},
}

// taskLabel prefers the runbook key over the opaque id.
func taskLabel(t *types.Task) string {
	if t.Key != "" {
		return t.Key
	}
	if len(t.ID) > 8 {
		return t.ID[:8]
	}
	return t.ID
}

func init() {
	taskAddCmd.Flags().String("scope-item", "", "Scope item id (required)")
	_ = taskAddCmd.MarkFlagRequired("scope-item")
	taskAddCmd.Flags().String("key", "", "Stable task key, unique per plan")
	taskAddCmd.Flags().StringP("description", "d", "", "Task description")
	taskAddCmd.Flags().String("owner", "", "Responsible person or team")
	taskAddCmd.Flags().String("duration", "0", "Planned duration (90, 1h30m, 2h)")
	taskAddCmd.Flags().Int("sequence", 0, "Display order (default: after the last task)")

	taskUpdateCmd.Flags().String("title", "", "Task title")
	taskUpdateCmd.Flags().StringP("description", "d", "", "Task description")
	taskUpdateCmd.Flags().String("owner", "", "Responsible person or team")
	taskUpdateCmd.Flags().String("duration", "", "Planned duration; recomputes the critical path")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskUpdateCmd, taskNoteCmd, taskTransitionCmd, taskDeleteCmd,
		taskStatusShortcut("start", "Start a task", types.TaskInProgress),
		taskStatusShortcut("complete", "Complete a task", types.TaskCompleted),
		taskStatusShortcut("fail", "Mark a task failed", types.TaskFailed),
		taskStatusShortcut("skip", "Skip a task", types.TaskSkipped),
	)

	depAddCmd.Flags().Int("lag", 0, "Minutes to wait after the predecessor finishes")
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)

	for _, c := range []*cobra.Command{scopeItemAddCmd, scopeItemUpdateCmd} {
		c.Flags().StringP("description", "d", "", "Description")
		c.Flags().String("owner", "", "Owning team")
	}
	scopeItemUpdateCmd.Flags().String("name", "", "Name")
	scopeItemCmd.AddCommand(scopeItemAddCmd, scopeItemListCmd, scopeItemUpdateCmd, scopeItemDeleteCmd)

	rootCmd.AddCommand(taskCmd, depCmd, scopeItemCmd)
}
