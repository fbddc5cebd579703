// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"nbrun-cli/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "nbrun"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "yaml"

	// DefaultEditor is used when neither config nor $EDITOR names one.
	DefaultEditor = "nano"
	// DefaultKernelCommand launches an IPython kernel; {connection_file}
	// in the args is replaced with the generated connection file path.
	DefaultKernelCommand = "python3"
	// DefaultStartupTimeout is how long to wait for the kernel to answer
	// its first kernel_info request, in seconds.
	DefaultStartupTimeout = 60
)

type (
	// KernelConfig controls how the kernel process is launched.
	KernelConfig struct {
		// Command is the kernel executable.
		Command string `mapstructure:"command"`
		// Args are the kernel arguments. The literal token
		// "{connection_file}" is replaced with the connection file path.
		Args []string `mapstructure:"args"`
		// StartupTimeout is the kernel readiness budget in seconds.
		StartupTimeout int `mapstructure:"startup_timeout"`
	}

	// Config is the root nbrun configuration.
	Config struct {
		// Timeout is the default per-cell timeout in seconds (0 = no limit).
		Timeout int `mapstructure:"timeout"`
		// Editor overrides $EDITOR for 'nbrun edit'.
		Editor string `mapstructure:"editor"`
		// Debug enables verbose error chains and protocol logging.
		Debug bool `mapstructure:"debug"`
		// Kernel controls kernel process launch.
		Kernel KernelConfig `mapstructure:"kernel"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 0,
		Editor:  "",
		Debug:   false,
		Kernel: KernelConfig{
			Command:        DefaultKernelCommand,
			Args:           []string{"-m", "ipykernel_launcher", "-f", "{connection_file}"},
			StartupTimeout: DefaultStartupTimeout,
		},
	}
}

// ConfigDir returns the nbrun configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Load reads the configuration from disk and environment.
// A missing config file is not an error; defaults are returned.
func Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("editor", defaults.Editor)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("kernel.command", defaults.Kernel.Command)
	v.SetDefault("kernel.args", defaults.Kernel.Args)
	v.SetDefault("kernel.startup_timeout", defaults.Kernel.StartupTimeout)

	v.SetEnvPrefix("NBRUN")
	v.AutomaticEnv()

	// If a custom config file path is set via --config flag, use it exclusively.
	if configFilePathOverride != "" {
		if _, err := os.Stat(configFilePathOverride); err != nil {
			return defaults, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(configFilePathOverride).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				Wrap(err).
				BuildError()
		}
		v.SetConfigFile(configFilePathOverride)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return defaults, issue.WrapWithOperation(err, "locate configuration directory")
		}
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileExt)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return defaults, issue.NewErrorContext().
				WithOperation("parse configuration").
				WithResource(v.ConfigFileUsed()).
				WithSuggestion("Check the YAML syntax of the config file").
				Wrap(err).
				BuildError()
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return defaults, issue.WrapWithOperation(err, "decode configuration")
	}

	if cfg.Timeout < 0 {
		return defaults, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("'timeout' must be zero or positive").
			BuildError()
	}
	if cfg.Kernel.StartupTimeout <= 0 {
		cfg.Kernel.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.Kernel.Command == "" {
		cfg.Kernel.Command = DefaultKernelCommand
	}

	return cfg, nil
}
