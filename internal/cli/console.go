// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console is the input/output pair command handlers talk through.
type Console struct {
	In  *bufio.Reader
	Out io.Writer
	// Interactive enables confirmation prompts.
	Interactive bool

	// password reads a secret without echo; nil reads a plain line from In.
	password func() (string, error)
}

// NewConsole returns a console on the process stdio.
func NewConsole() *Console {
	c := &Console{
		In:          bufio.NewReader(os.Stdin),
		Out:         os.Stdout,
		Interactive: IsInteractive(),
	}
	if IsTTY() {
		c.password = func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			return string(b), err
		}
	}
	return c
}

// NewTestConsole reads from in and writes to out with no TTY behavior.
func NewTestConsole(in io.Reader, out io.Writer) *Console {
	return &Console{In: bufio.NewReader(in), Out: out}
}

// ReadLine prints prompt and returns one trimmed line.
func (c *Console) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(c.Out, prompt)
	}
	line, err := c.In.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword prints prompt and reads a secret.
func (c *Console) ReadPassword(prompt string) (string, error) {
	if c.password == nil {
		return c.ReadLine(prompt)
	}
	fmt.Fprint(c.Out, prompt)
	pw, err := c.password()
	fmt.Fprintln(c.Out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pw), nil
}

// Confirm asks a yes/no question. Non-interactive consoles return def.
func (c *Console) Confirm(prompt string, def bool) bool {
	if !c.Interactive {
		return def
	}
	suffix := " [y/N] "
	if def {
		suffix = " [Y/n] "
	}
	answer, err := c.ReadLine(prompt + suffix)
	if err != nil || answer == "" {
		return def
	}
	ok, err := ParseBoolString(answer)
	if err != nil {
		return def
	}
	return ok
}
