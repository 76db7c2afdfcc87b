// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positionals.
//
// Supported forms:
//
//	--flag value     long flag with a value
//	--flag=value     long flag with an inline value
//	-f value         short flag with a value
//	--flag           boolean flag
//
// Example:
//
//	args := NewArgParser([]string{"set", "dispatch.workers", "8", "--config=/etc/rigchat.toml"})
//	args.Subcommand()      // "set"
//	args.Positional(1)     // "dispatch.workers"
//	args.Flag("config")    // "/etc/rigchat.toml"
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// switchFlags never take a value, so "--json status" keeps "status" as a
// positional.
var switchFlags = map[string]bool{
	"json":    true,
	"force":   true,
	"help":    true,
	"h":       true,
	"version": true,
	"V":       true,
}

// NewArgParser parses raw.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0),
		raw:        raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		// "--" ends flag parsing
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}

		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name, value, inline := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch {
		case inline && (value == "true" || value == "false"):
			p.boolFlags[name] = value == "true"
		case inline:
			p.flags[name] = value
		case !switchFlags[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-"):
			p.flags[name] = raw[i+1]
			i++
		default:
			p.boolFlags[name] = true
		}
	}

	if len(p.positional) > 0 {
		p.subcommand = p.positional[0]
	}
	return p
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.subcommand
}

// Flag returns the value of a string flag, or "".
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if val, ok := p.flags[strings.TrimLeft(name, "-")]; ok {
			return val
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or defaultValue when unset.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if val := p.Flag(name); val != "" {
		return val
	}
	return defaultValue
}

// FlagInt returns the flag value as an integer.
func (p *ArgParser) FlagInt(name string) (int, error) {
	val := p.Flag(name)
	if val == "" {
		return 0, fmt.Errorf("flag %s not found", name)
	}
	return strconv.Atoi(val)
}

// BoolFlag reports whether any of the named boolean flags is set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if p.boolFlags[strings.TrimLeft(name, "-")] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "". Index 0 is
// the subcommand.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// HasFlag reports whether the flag was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasString := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasString || hasBool
}

// Raw returns the original arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// Shift returns a parser over the arguments after the subcommand, keeping
// the flags. Used to descend into nested commands.
func (p *ArgParser) Shift() *ArgParser {
	next := &ArgParser{
		flags:      p.flags,
		boolFlags:  p.boolFlags,
		positional: p.PositionalFrom(1),
		raw:        p.raw,
	}
	if len(next.positional) > 0 {
		next.subcommand = next.positional[0]
	}
	return next
}
