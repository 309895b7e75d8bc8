// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits command arguments into flags and positionals.
//
// Supported forms:
//
//	--flag value     value flag
//	--flag=value     value flag
//	-f value         short value flag
//	--flag           boolean flag
//
// Names passed as boolFlags never consume the following argument, so
// "history --json list" keeps "list" as a positional.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolFlags names flags that take no value.
func NewArgParser(raw []string, boolFlags ...string) *ArgParser {
	known := make(map[string]bool, len(boolFlags))
	for _, name := range boolFlags {
		known[strings.TrimLeft(name, "-")] = true
	}

	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if b, err := ParseBoolString(v); err == nil && (known[k] || v == "true" || v == "false") {
				p.boolFlags[k] = b
			} else {
				p.flags[k] = v
			}
			continue
		}

		if !known[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}
	return p
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns the value of a value flag, or "".
func (p *ArgParser) Flag(name string) string {
	return p.flags[strings.TrimLeft(name, "-")]
}

// FlagOrDefault returns the flag value or def when absent.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// FlagInt returns the flag as an integer, or def when absent or malformed.
func (p *ArgParser) FlagInt(name string, def int) int {
	v, err := strconv.Atoi(p.Flag(name))
	if err != nil {
		return def
	}
	return v
}

// BoolFlag reports whether a boolean flag was given.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}

// HasFlag reports whether name was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, isValue := p.flags[name]
	_, isBool := p.boolFlags[name]
	return isValue || isBool
}

// Positional returns the positional at index (0 is the subcommand), or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom joins positionals from index on with spaces.
func (p *ArgParser) PositionalFrom(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return strings.Join(p.positional[index:], " ")
}

// Len returns the number of positionals.
func (p *ArgParser) Len() int {
	return len(p.positional)
}

// Raw returns the unparsed arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// ParseBoolString accepts true/false, yes/no, on/off and 1/0.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on", "1":
		return true, nil
	case "false", "no", "n", "off", "0":
		return false, nil
	}
	return false, &ValidationError{Field: "value", Value: s, Reason: "expected true or false"}
}
