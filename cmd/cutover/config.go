package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steveyegge/cutover/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration settings",
	Long: `Manage configuration settings.

Settings live in .cutover/cutover.yaml (or ~/.config/cutover/cutover.yaml)
and can be overridden with CUTOVER_* environment variables, e.g.
CUTOVER_STORAGE_BACKEND=mysql.

Examples:
  cutover config set tenant acme
  cutover config set program s4-wave1
  cutover config set sla.p1.response-min 10
  cutover config get plan.code-prefix
  cutover config list`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in cutover.yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		key, value := args[0], args[1]
		if !config.IsKnownKey(key) {
			FatalErrorWithHint(fmt.Sprintf("unknown config key %q", key), "run 'cutover config list' to see the known keys")
		}
		if err := config.SetYamlConfig(key, value); err != nil {
			FatalError("setting config: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
			return
		}
		fmt.Printf("Set %s = %s\n", key, value)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a key",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		value := config.GetString(args[0])
		if jsonOutput {
			outputJSON(map[string]string{"key": args[0], "value": value})
			return
		}
		fmt.Println(value)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective settings",
	Run: func(_ *cobra.Command, _ []string) {
		settings := flatten("", config.AllSettings())
		if jsonOutput {
			outputJSON(settings)
			return
		}
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Printf("# %s\n", path)
		}
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s = %v\n", k, settings[k])
		}
	},
}

var configLocalCmd = &cobra.Command{
	Use:   "local [dir]",
	Short: "Show the project file's tenant, program and storage (env applied)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		dir := ".cutover"
		if len(args) == 1 {
			dir = args[0]
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		cfg := config.LoadLocalConfigWithEnv(dir)
		if jsonOutput {
			outputJSON(cfg)
			return
		}
		if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); err != nil {
			WarnError("no %s in %s", config.ConfigFileName, dir)
		}
		fmt.Printf("tenant  = %s\nprogram = %s\nactor   = %s\n", cfg.Tenant, cfg.Program, cfg.Actor)
		fmt.Printf("storage = %s %s%s\n", cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.DSN)
	},
}

// flatten turns viper's nested settings into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configLocalCmd)
	rootCmd.AddCommand(configCmd)
}
