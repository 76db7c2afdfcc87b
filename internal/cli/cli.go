// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/jeranaias/rigrun-chat/internal/config"
)

// Version information (overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is a top-level CLI command.
type Command int

const (
	CmdServe Command = iota
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[string]Command{
	"serve":     CmdServe,
	"server":    CmdServe,
	"status":    CmdStatus,
	"s":         CmdStatus,
	"config":    CmdConfig,
	"version":   CmdVersion,
	"--version": CmdVersion,
	"-V":        CmdVersion,
	"help":      CmdHelp,
	"--help":    CmdHelp,
	"-h":        CmdHelp,
}

const usageText = `rigchat - streaming chat server for local and hosted LLMs

Usage:
  rigchat [serve]                 Start the chat server (default)
  rigchat status, s               Check storage and model provider
  rigchat config <subcommand>     Configuration
  rigchat version                 Show version
  rigchat help                    Show this help

Config Commands:
  rigchat config init             Write a default config file
    --force                       Overwrite an existing file
  rigchat config show             Show the effective configuration
  rigchat config get <key>        Show one value (e.g. model.name)
  rigchat config set <key> <val>  Change one value and save
  rigchat config keys             List settable keys
  rigchat config path             Show the config file path

Global Flags:
  -c, --config FILE    Config file (default: ~/.rigchat/config.toml)
  --addr ADDR          Override server.addr for this run
  --json               JSON output for status and config show

Environment:
  RIGCHAT_ADDR, RIGCHAT_TOKEN, RIGCHAT_DB, RIGCHAT_PROVIDER,
  RIGCHAT_BASE_URL, RIGCHAT_API_KEY, RIGCHAT_MODEL, RIGCHAT_WORKERS

Examples:
  rigchat serve --addr 0.0.0.0:8787
  rigchat config set model.provider ollama
  rigchat config set model.name qwen2.5:14b
  RIGCHAT_API_KEY=sk-... rigchat serve

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse resolves the command named by argv (without the program name).
// With no command, or only flags, the server is started.
func Parse(argv []string) (Command, *ArgParser) {
	args := NewArgParser(argv)
	if args.BoolFlag("help", "h") {
		return CmdHelp, args
	}
	if args.BoolFlag("version", "V") {
		return CmdVersion, args
	}

	name := args.Subcommand()
	if name == "" {
		return CmdServe, args
	}
	cmd, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return CmdUnknown, args
	}
	return cmd, args.Shift()
}

// Main runs the CLI and returns the process exit code.
func Main(argv []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := Run(ctx, argv, os.Stdout)
	if err != nil && ExitCode(err) != ExitSuccess {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// Run dispatches argv to its command, writing output to w.
func Run(ctx context.Context, argv []string, w io.Writer) error {
	cmd, args := Parse(argv)
	switch cmd {
	case CmdServe:
		return HandleServe(ctx, args)
	case CmdStatus:
		return HandleStatus(ctx, args, w)
	case CmdConfig:
		return HandleConfig(args, w)
	case CmdVersion:
		PrintVersion(w)
		return nil
	case CmdHelp:
		PrintUsage(w)
		return nil
	default:
		return usageErrorf("unknown command %q (see 'rigchat help')", args.Subcommand())
	}
}

// loadConfig loads the file named by --config, or the default locations.
func loadConfig(args *ArgParser) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := args.Flag("config", "c"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if addr := args.Flag("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	return cfg, nil
}

// configPath returns the file named by --config, or the default TOML path.
func configPath(args *ArgParser) (string, error) {
	if path := args.Flag("config", "c"); path != "" {
		return path, nil
	}
	return config.ConfigPathTOML()
}
