// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the rigchat commands.
//
// # Key Types
//
//   - Command: the top-level commands (serve, status, config, version, help)
//   - ArgParser: flag and positional argument parsing shared by all commands
//   - App: the assembled pipeline of store, hub, orchestrator, dispatcher
//     and HTTP server
//   - Provider: a model backend (Ollama or any OpenAI-compatible endpoint)
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Main(os.Args[1:]))
//	}
//
// # Commands Overview
//
//   - serve: run the chat server until SIGINT or SIGTERM
//   - status: check storage and the model provider, exit non-zero on failure
//   - config: init, show, get, set, keys and path
//
// Errors map to exit codes through ExitCode.
package cli
