// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (set at build time via ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies a top-level command.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdHistory
	CmdRegister
	CmdLogin
	CmdLogout
	CmdWhoami
	CmdMFAEnroll
	CmdServe
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"tui":        CmdTUI,
	"chat":       CmdChat,
	"repl":       CmdChat,
	"history":    CmdHistory,
	"hist":       CmdHistory,
	"register":   CmdRegister,
	"signup":     CmdRegister,
	"login":      CmdLogin,
	"logout":     CmdLogout,
	"whoami":     CmdWhoami,
	"mfa-enroll": CmdMFAEnroll,
	"mfa":        CmdMFAEnroll,
	"serve":      CmdServe,
	"config":     CmdConfig,
	"version":    CmdVersion,
	"help":       CmdHelp,
}

// String returns the canonical command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdHistory:
		return "history"
	case CmdRegister:
		return "register"
	case CmdLogin:
		return "login"
	case CmdLogout:
		return "logout"
	case CmdWhoami:
		return "whoami"
	case CmdMFAEnroll:
		return "mfa-enroll"
	case CmdServe:
		return "serve"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds the global options and the command's own arguments.
type Args struct {
	ConfigPath string
	Offline    bool
	Verbose    bool
	JSON       bool

	// Unknown is set when the command name was not recognized.
	Unknown string

	// Parser holds everything after the command name.
	Parser *ArgParser
}

// commandBoolFlags never take a value in any command.
var commandBoolFlags = []string{"json", "yes", "y", "force", "offline", "verbose", "v", "help", "h"}

// Parse splits argv (without the program name) into a command and its args.
// Global flags may appear before or after the command name.
func Parse(argv []string) (Command, Args) {
	var args Args
	cmd := CmdTUI
	rest := argv

globals:
	for len(rest) > 0 {
		arg := rest[0]
		switch {
		case arg == "--config" || arg == "-c":
			if len(rest) > 1 {
				args.ConfigPath = rest[1]
				rest = rest[2:]
				continue
			}
			rest = rest[1:]
			continue
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--offline":
			args.Offline = true
		case arg == "--verbose" || arg == "-v":
			args.Verbose = true
		case arg == "--json":
			args.JSON = true
		case arg == "--help" || arg == "-h":
			return CmdHelp, args
		case arg == "--version":
			return CmdVersion, args
		default:
			break globals
		}
		rest = rest[1:]
	}

	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		name := strings.ToLower(rest[0])
		c, ok := commandNames[name]
		if !ok {
			args.Unknown = rest[0]
			args.Parser = NewArgParser(nil)
			return CmdHelp, args
		}
		cmd = c
		rest = rest[1:]
	}

	args.Parser = NewArgParser(rest, commandBoolFlags...)
	if path := args.Parser.Flag("config"); path != "" {
		args.ConfigPath = path
	}
	args.Offline = args.Offline || args.Parser.BoolFlag("offline")
	args.Verbose = args.Verbose || args.Parser.BoolFlag("verbose") || args.Parser.BoolFlag("v")
	args.JSON = args.JSON || args.Parser.BoolFlag("json")
	if args.Parser.BoolFlag("help") || args.Parser.BoolFlag("h") {
		return CmdHelp, args
	}
	return cmd, args
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `medassist - healthcare assistant chat

Usage:
  medassist [global flags] [command] [args]

Commands:
  tui                      Chat screen (default)
  chat                     Line-mode chat with input history
  history [list]           List saved consultations
  history show <id>        Print a saved consultation
  history export <id>      Export as markdown (--json for JSON, --out <file>)
  history delete <id>      Delete a saved consultation (--yes to skip confirm)
  register [email]         Create a local account
  login [email]            Sign in (--code <totp> when enrolled)
  logout                   Sign out
  whoami                   Show the signed-in user
  mfa-enroll               Enroll an authenticator app for sign-in codes
  serve [--addr host:port] Run the status server
  config [show]            Show effective configuration (secrets redacted)
  config path              Print the config file path
  config init [--force]    Write a default config file
  config get <key>         Print one setting
  config set <key> <value> Change one setting
  version                  Show version

Chat commands (inside 'chat'):
  /new /save /discard /history /open <id> /quit /help

Global flags:
  -c, --config <path>      Config file (default: ~/.medassist/config.toml)
      --offline            Answer from built-in replies, no network
  -v, --verbose            Debug logging to stderr
      --json               JSON output where supported
  -h, --help               Show this help
      --version            Show version

Environment:
  MEDASSIST_INFERENCE_URL, MEDASSIST_API_KEY, MEDASSIST_DATABASE_URL,
  MEDASSIST_LOG_LEVEL, MEDASSIST_SERVER_ADDR, MEDASSIST_SERVER_TOKEN
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "medassist %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
