package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of cutover.yaml needed before viper is
// initialised, e.g. to locate the database from a different directory.
type LocalConfig struct {
	Tenant  string `yaml:"tenant"`
	Program string `yaml:"program"`
	Actor   string `yaml:"actor"`
	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSN     string `yaml:"dsn"`
	} `yaml:"storage"`
}

// LoadLocalConfig reads dir/cutover.yaml directly, bypassing viper.
//
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't be parsed.
func LoadLocalConfig(dir string) *LocalConfig {
	configPath := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from dir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// LoadLocalConfigWithEnv applies CUTOVER_TENANT / CUTOVER_PROGRAM /
// CUTOVER_ACTOR on top of LoadLocalConfig.
func LoadLocalConfigWithEnv(dir string) *LocalConfig {
	cfg := LoadLocalConfig(dir)
	if s := os.Getenv("CUTOVER_TENANT"); s != "" {
		cfg.Tenant = s
	}
	if s := os.Getenv("CUTOVER_PROGRAM"); s != "" {
		cfg.Program = s
	}
	if s := os.Getenv("CUTOVER_ACTOR"); s != "" {
		cfg.Actor = s
	}
	return cfg
}
