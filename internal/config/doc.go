// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// Supports TOML, JSON and YAML configuration formats, with sensible
// defaults, environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: HTTP listen address, auth and rate limiting
//   - ModelConfig: Model provider selection (ollama, openai)
//   - DispatchConfig: Completion worker pool sizing and timeouts
//   - Watcher: Reloads a config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*)
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - ~/.rigchat/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go config.Watch(ctx, path, func(cfg *config.Config) {
//	    server.SetRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
//	})
package config
