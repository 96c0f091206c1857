package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// knownKeys are the settable keys accepted by `cutover config set`.
// sla.<severity>.* keys are accepted by prefix.
var knownKeys = map[string]bool{
	KeyStorageBackend:      true,
	KeyStoragePath:         true,
	KeyStorageDSN:          true,
	KeyStorageLockTimeout:  true,
	KeyTenant:              true,
	KeyProgram:             true,
	KeyActor:               true,
	KeyJSON:                true,
	KeyPlanCodePrefix:      true,
	KeyPlanHypercareWeeks:  true,
	KeyExitSLAThreshold:    true,
	KeyServerAddr:          true,
	KeyLogFormat:           true,
	KeyLogLevel:            true,
	KeyNotifyWebhookURL:    true,
	KeyNotifyWebhookSecret: true,
	KeyNotifyEvents:        true,
}

// IsKnownKey reports whether key may be written with SetYamlConfig.
func IsKnownKey(key string) bool {
	if knownKeys[key] {
		return true
	}
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "sla" {
		return false
	}
	switch parts[1] {
	case "p1", "p2", "p3", "p4":
	default:
		return false
	}
	return parts[2] == "response-min" || parts[2] == "resolution-min"
}

// SetYamlConfig writes key=value into the project's .cutover/cutover.yaml,
// creating the file if needed. Dotted keys become nested mappings.
func SetYamlConfig(key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	configPath := ConfigFileUsed()
	if configPath == "" {
		configPath = filepath.Join(".cutover", ConfigFileName)
	}

	var doc yaml.Node
	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is the discovered config file
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	setYamlKey(&doc, strings.Split(key, "."), value)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	Set(key, value)
	return nil
}

// setYamlKey sets path to value inside doc, creating intermediate
// mappings. Comments on existing nodes are preserved by yaml.v3.
func setYamlKey(doc *yaml.Node, path []string, value string) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	node := doc.Content[0]
	for i, part := range path {
		var child *yaml.Node
		for j := 0; j+1 < len(node.Content); j += 2 {
			if node.Content[j].Value == part {
				child = node.Content[j+1]
				break
			}
		}
		last := i == len(path)-1
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}, child)
		}
		if last {
			child.Kind = yaml.ScalarNode
			child.Content = nil
			child.Value = value
			child.Tag = scalarTag(value)
			return
		}
		if child.Kind != yaml.MappingNode {
			child.Kind = yaml.MappingNode
			child.Tag = "!!map"
			child.Value = ""
		}
		node = child
	}
}

func scalarTag(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return "!!bool"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "!!int"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "!!float"
	}
	return "!!str"
}
