// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/rigrun-chat/internal/config"
)

// HandleConfig handles "rigchat config <subcommand>".
func HandleConfig(args *ArgParser, w io.Writer) error {
	path, err := configPath(args)
	if err != nil {
		return commandError("config", "", err)
	}

	switch args.Subcommand() {
	case "init":
		return commandError("config", "init", configInit(path, args.BoolFlag("force"), w))
	case "", "show":
		return commandError("config", "show", configShow(args, w))
	case "get":
		if args.PositionalCount() < 2 {
			return usageErrorf("usage: rigchat config get <key>")
		}
		return commandError("config", "get", configGet(args, args.Positional(1), w))
	case "set":
		if args.PositionalCount() < 3 {
			return usageErrorf("usage: rigchat config set <key> <value>")
		}
		value := strings.Join(args.PositionalFrom(2), " ")
		return commandError("config", "set", configSet(path, args.Positional(1), value, w))
	case "keys":
		for _, key := range config.GetAllKeys() {
			fmt.Fprintln(w, key)
		}
		return nil
	case "path":
		fmt.Fprintln(w, path)
		return nil
	default:
		return usageErrorf("unknown config subcommand %q", args.Subcommand())
	}
}

func configInit(path string, force bool, w io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

func configShow(args *ArgParser, w io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if args.BoolFlag("json") {
		fmt.Fprintln(w, cfg.String())
		return nil
	}

	for _, key := range config.GetAllKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-32s %s\n", key, maskIfSecret(key, formatValue(value)))
	}
	return nil
}

func configGet(args *ArgParser, key string, w io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, maskIfSecret(key, formatValue(value)))
	return nil
}

// configSet edits the file at path, creating it from defaults when missing.
// Environment overrides are not written back.
func configSet(path, key, value string, w io.Writer) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.ReadFile(path); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Set %s = %s\n", key, maskIfSecret(key, value))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatValue(v any) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}

// maskAPIKey shows a short SHA-256 fingerprint instead of the key.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

// maskIfSecret masks the value if the key names a secret field.
func maskIfSecret(key, value string) string {
	keyLower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(keyLower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}
