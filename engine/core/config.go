package core

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

/** @brief Logging section of the engine configuration. */
type LoggingConfig struct {
	/** @brief Minimum level written to the log ("debug", "info", "warn", "error"). */
	Level string `toml:"level"`
	/** @brief Prefix printed in front of every line. */
	Prefix string `toml:"prefix"`
	/** @brief Report file and line of the log call. */
	ReportCaller bool `toml:"report_caller"`
	/** @brief Report the time of the log call. */
	ReportTimestamp bool `toml:"report_timestamp"`
}

/** @brief Controls the contract checks of the binding layer. */
type ValidationConfig struct {
	/** @brief Overrides the build default when set. */
	Enabled *bool `toml:"enabled"`
}

/** @brief Location of shader layout and resource mapping assets. */
type AssetsConfig struct {
	/** @brief Directory scanned for .shaderlayout and .resmap files. */
	BasePath string `toml:"base_path"`
	/** @brief Reload assets when they change on disk. */
	Watch bool `toml:"watch"`
}

/** @brief Defaults used when binding resources. */
type BindingConfig struct {
	/** @brief Names of the bind flags: "reset", "update_unresolved", "all_resolved". */
	Flags []string `toml:"flags"`
	/** @brief Maximum number of shader programs held by the binding system. */
	MaxProgramCount uint32 `toml:"max_program_count"`
}

type EngineConfig struct {
	Name       string           `toml:"name"`
	Logging    LoggingConfig    `toml:"logging"`
	Validation ValidationConfig `toml:"validation"`
	Assets     AssetsConfig     `toml:"assets"`
	Binding    BindingConfig    `toml:"binding"`
}

func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Name: "Anima Binding",
		Logging: LoggingConfig{
			Level:           "info",
			ReportCaller:    true,
			ReportTimestamp: true,
		},
		Assets: AssetsConfig{
			BasePath: "assets",
		},
		Binding: BindingConfig{
			Flags:           []string{"all_resolved"},
			MaxProgramCount: 512,
		},
	}
}

// ParseConfig decodes a TOML document on top of the defaults.
func ParseConfig(data []byte) (*EngineConfig, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *EngineConfig) Validate() error {
	if c.Binding.MaxProgramCount == 0 {
		return fmt.Errorf("%w: binding.max_program_count must be greater than 0", ErrInvalidConfig)
	}
	if c.Assets.Watch && c.Assets.BasePath == "" {
		return fmt.Errorf("%w: assets.watch requires assets.base_path", ErrInvalidConfig)
	}
	return nil
}

// Apply configures logging and validation from c.
func (c *EngineConfig) Apply() error {
	if err := ConfigureLogging(c.Logging); err != nil {
		return err
	}
	if c.Validation.Enabled != nil {
		EnableValidation(*c.Validation.Enabled)
	}
	return nil
}
