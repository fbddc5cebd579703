// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper.
//
// Configuration is read from a YAML file in the platform config directory
// (Linux: $XDG_CONFIG_HOME/nbrun, macOS: ~/Library/Application Support/nbrun,
// Windows: %APPDATA%\nbrun) and from NBRUN_* environment variables.
// Command-line flags take precedence over both.
package config
