// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jeranaias/medassist-tui/internal/config"
)

// HandleConfig implements "medassist config". It works without opening the
// stores, so a broken database URL can still be fixed from here.
func HandleConfig(args Args, console *Console) error {
	path := args.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	p := args.Parser

	switch sub := p.Subcommand(); sub {
	case "", "show":
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(console.Out, cfg.String())
		return nil

	case "path":
		fmt.Fprintln(console.Out, path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return &UsageError{Command: "config init", Message: path + " exists; pass --force to overwrite"}
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(console.Out, "%s Wrote %s\n", successMark(), path)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return &UsageError{Command: "config get", Message: "missing key"}
		}
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		v, err := cfg.Get(key)
		if err != nil {
			return &ValidationError{Field: "key", Value: key, Reason: err.Error()}
		}
		if key == "inference.api_key" || key == "server.token" {
			v = "[REDACTED]"
		}
		fmt.Fprintln(console.Out, v)
		return nil

	case "set":
		key, value := p.Positional(1), p.PositionalFrom(2)
		if key == "" || p.Len() < 3 {
			return &UsageError{Command: "config set", Message: "usage: config set <key> <value>"}
		}
		cfg := config.Default()
		if _, err := os.Stat(path); err == nil {
			if err := config.LoadTOML(cfg, path); err != nil {
				return err
			}
		}
		if err := cfg.Set(key, value); err != nil {
			return &ValidationError{Field: key, Value: value, Reason: err.Error()}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveTOML(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(console.Out, "%s %s updated\n", successMark(), key)
		return nil

	case "keys":
		keys := config.GetAllKeys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(console.Out, k)
		}
		return nil

	default:
		return &UsageError{Command: "config", Message: fmt.Sprintf("unknown subcommand %q", sub)}
	}
}
