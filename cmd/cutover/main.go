package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/config"
	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/storage/factory"
	"github.com/steveyegge/cutover/internal/telemetry"
	"github.com/steveyegge/cutover/internal/types"
)

var (
	dbPath     string
	backend    string
	actor      string
	tenant     string
	program    string
	jsonOutput bool
	logFormat  string

	verboseFlag bool
	quietFlag   bool
	assumeYes   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	store storage.Storage
	svc   *orchestration.Service
	log   *slog.Logger
)

// noStoreCommands run without opening the database.
var noStoreCommands = map[string]bool{
	"version":       true,
	"help":          true,
	"completion":    true,
	"config":        true,
	"notify":        true,
	"validate":      true,
	"verify-export": true,
	"serve":         true, // opens its own store with the Prometheus-backed recorder
}

func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noStoreCommands[c.Name()] {
			return false
		}
	}
	return cmd.HasParent()
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: storage.path, .cutover/cutover.db)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: sqlite or mysql (default: storage.backend)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for audit fields (default: $CUTOVER_ACTOR, $USER)")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant id (default: config tenant)")
	rootCmd.PersistentFlags().StringVar(&program, "program", "", "Program id (default: config program)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default: log.format)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "plan", Title: "Planning:"})
	rootCmd.AddGroup(&cobra.Group{ID: "exec", Title: "Execution & Go-Live:"})
	rootCmd.AddGroup(&cobra.Group{ID: "hypercare", Title: "Hypercare:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

var rootCmd = &cobra.Command{
	Use:   "cutover",
	Short: "cutover - SAP go-live cutover orchestration",
	Long: `Plans, rehearses, executes and closes production cutovers: runbook tasks
with dependencies and a critical path, Go/No-Go gating, and hypercare
incidents with SLA deadlines and escalation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("cutover version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyFlagOverrides(cmd)
		floor := slog.LevelWarn
		if cmd.Name() == "serve" {
			floor = slog.LevelDebug
		}
		log = newLogger(os.Stderr, floor)
		slog.SetDefault(log)

		if !needsStore(cmd) {
			return
		}
		if err := telemetry.Init(rootCtx, "cutover", Version, telemetry.Options{}); err != nil {
			WarnError("telemetry init failed: %v", err)
		}
		openService()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		if rootCtx != nil {
			telemetry.Shutdown(rootCtx)
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyFlagOverrides pushes explicitly set flags into viper so config.Get*
// sees one merged view.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	set := func(flag, key string, value any) {
		if flags.Changed(flag) {
			config.Set(key, value)
		}
	}
	set("db", config.KeyStoragePath, dbPath)
	set("backend", config.KeyStorageBackend, backend)
	set("tenant", config.KeyTenant, tenant)
	set("program", config.KeyProgram, program)
	set("actor", config.KeyActor, actor)
	set("log-format", config.KeyLogFormat, logFormat)
	if !flags.Changed("json") && config.GetBool(config.KeyJSON) {
		jsonOutput = true
	}
}

// openService opens the configured store and builds the service. Fatal on
// failure.
func openService() {
	s, err := factory.NewFromConfig(rootCtx)
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("failed to open %s store: %v", config.GetString(config.KeyStorageBackend), err),
			"check storage.backend / storage.path, or pass --db")
	}
	store = s
	svc, err = newService(s, telemetry.NewRecorder())
	if err != nil {
		FatalError("%v", err)
	}
}

func newService(s storage.Storage, rec *telemetry.Recorder) (*orchestration.Service, error) {
	return orchestration.New(s, orchestration.Options{
		Logger:           log,
		Recorder:         rec,
		CodePrefix:       config.GetString(config.KeyPlanCodePrefix),
		HypercareWeeks:   config.GetInt(config.KeyPlanHypercareWeeks),
		SLADefaults:      config.SLATargets,
		ExitSLAThreshold: config.GetFloat64(config.KeyExitSLAThreshold),
		Events:           newEventBus(),
	})
}

// currentScope returns the tenant/program scope, exiting when either is
// unset.
func currentScope() types.Scope {
	scope := types.Scope{
		TenantID:  strings.TrimSpace(config.GetString(config.KeyTenant)),
		ProgramID: strings.TrimSpace(config.GetString(config.KeyProgram)),
	}
	if err := scope.Validate(); err != nil {
		FatalErrorWithHint(err.Error(), "pass --tenant and --program, or run 'cutover config set tenant <id>'")
	}
	return scope
}

// getActor returns the actor for audit fields.
// Priority: --actor flag > actor config / CUTOVER_ACTOR > $USER > "unknown"
func getActor() string {
	if a := strings.TrimSpace(config.GetString(config.KeyActor)); a != "" {
		return a
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
