// Package config provides configuration management for the KPI dashboard.
// It loads settings from several sources, validates them, and exposes a
// typed Config to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority), including a local .env file
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables use the KPIDASH_ prefix followed by the section
// and field name:
//
//	KPIDASH_SERVER_PORT=8080
//	KPIDASH_DATA_SOURCE=Updated_18_KPI_Dashboard.xlsx
//	KPIDASH_DATA_SHEETS=Q1,Q2
//	KPIDASH_LOGGING_LEVEL=debug
//	KPIDASH_CONFIG=/etc/kpidash/kpidash.yaml
//
// # Path Management
//
// PathsConfig.ResolvePaths turns the configured directories into absolute
// locations relative to the executable, unless a base directory is set:
//
//	paths, err := cfg.Paths.ResolvePaths()
//	source := paths.DataPath(cfg.Data.Source)
package config
