package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/config"
	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/types"
	"github.com/steveyegge/cutover/internal/ui"
)

// newEventBus builds the bus the service publishes to: a debug trace of
// every event, plus the notify.webhook-url webhook when configured.
func newEventBus() *eventbus.Bus {
	bus := eventbus.New(log)
	bus.Register(&eventbus.LogHandler{Log: log})

	url := strings.TrimSpace(config.GetString(config.KeyNotifyWebhookURL))
	if url == "" {
		return bus
	}
	events, err := eventbus.ParseEventTypes(splitList(config.GetString(config.KeyNotifyEvents)))
	if err != nil {
		WarnError("notify.events: %v (delivering every event)", err)
		events = nil
	}
	bus.Register(eventbus.NewWebhookHandler(eventbus.WebhookConfig{
		URL:    url,
		Secret: []byte(config.GetString(config.KeyNotifyWebhookSecret)),
		Events: events,
	}))
	return bus
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var notifyCmd = &cobra.Command{
	Use:     "notify",
	GroupID: "setup",
	Short:   "Inspect and test event notifications",
	Long: `Committed changes (plan, task and incident transitions, Go/No-Go verdicts,
escalations, exit sign-offs) are published as events. Set notify.webhook-url
to POST them as JSON; notify.webhook-secret adds an X-Cutover-Signature
HMAC-SHA256 header and notify.events (comma separated) limits the types.`,
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a synthetic escalation event to the configured handlers",
	Run: func(cmd *cobra.Command, args []string) {
		bus := newEventBus()
		ev := &eventbus.Event{
			Type:    eventbus.EventEscalationRaised,
			Scope:   types.Scope{TenantID: config.GetString(config.KeyTenant), ProgramID: config.GetString(config.KeyProgram)},
			Subject: "notify-test",
			Actor:   getActor(),
			At:      time.Now().UTC(),
			Data:    map[string]any{"level": 0, "reason": "cutover notify test"},
		}
		failed, err := bus.Dispatch(rootCtx, ev)
		if err != nil {
			FatalError("%v", err)
		}
		handlers := bus.Handlers()
		if jsonOutput {
			ids := make([]string, len(handlers))
			for i, h := range handlers {
				ids[i] = h.ID()
			}
			outputJSON(map[string]any{"handlers": ids, "failed": failed})
			return
		}
		if failed > 0 {
			FatalError("%d of %d handlers failed (see warnings above)", failed, len(handlers))
		}
		printf("%s Delivered to %d handler(s)\n", ui.RenderPassIcon(), len(handlers))
	},
}

var notifyEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List event types",
	Run: func(cmd *cobra.Command, args []string) {
		all := eventbus.AllEvents()
		if jsonOutput {
			outputJSON(all)
			return
		}
		for _, t := range all {
			printf("%s\n", t)
		}
	},
}

func init() {
	notifyCmd.AddCommand(notifyTestCmd, notifyEventsCmd)
	rootCmd.AddCommand(notifyCmd)
}
