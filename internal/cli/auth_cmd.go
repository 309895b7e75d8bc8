// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/medassist-tui/internal/auth"
	"github.com/jeranaias/medassist-tui/internal/util"
)

// =============================================================================
// REGISTER
// =============================================================================

// HandleRegister implements "medassist register [email]".
func HandleRegister(app *App, args Args, console *Console) error {
	email, err := emailArg(args.Parser, console)
	if err != nil {
		return err
	}
	password, err := console.ReadPassword("Password: ")
	if err != nil {
		return err
	}
	if util.RuneLen(password) < auth.MinPasswordLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("use at least %d characters", auth.MinPasswordLength)}
	}
	confirm, err := console.ReadPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if confirm != password {
		return &ValidationError{Field: "password", Reason: "passwords do not match"}
	}

	user, err := app.Auth.Register(email, password)
	if err != nil {
		return err
	}
	app.Logger.Info("account registered", "user_id", user.ID)

	// Registration signs the new user in straight away.
	if _, err := app.Auth.SignIn(email, password, ""); err != nil {
		return err
	}
	if args.JSON {
		return writeJSONResponse(console.Out, "register", user, nil)
	}
	fmt.Fprintf(console.Out, "%s Registered and signed in as %s\n", successMark(), user.Email)
	return nil
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// HandleLogin implements "medassist login [email] [--code 123456]".
func HandleLogin(app *App, args Args, console *Console) error {
	email, err := emailArg(args.Parser, console)
	if err != nil {
		return err
	}
	password, err := console.ReadPassword("Password: ")
	if err != nil {
		return err
	}

	code := args.Parser.Flag("code")
	user, err := app.Auth.SignIn(email, password, code)
	if errors.Is(err, auth.ErrMFARequired) && code == "" {
		code, err = console.ReadLine("Authenticator code: ")
		if err != nil {
			return err
		}
		user, err = app.Auth.SignIn(email, password, code)
	}
	if err != nil {
		app.Logger.Warn("sign-in failed", "error", err)
		return err
	}
	app.Logger.Info("signed in", "user_id", user.ID)

	if args.JSON {
		return writeJSONResponse(console.Out, "login", map[string]any{
			"user":       user,
			"expires_at": app.Auth.SessionExpiry(),
		}, nil)
	}
	fmt.Fprintf(console.Out, "%s Signed in as %s until %s\n", successMark(), user.Email,
		app.Auth.SessionExpiry().Local().Format(time.Kitchen))
	return nil
}

// HandleLogout implements "medassist logout".
func HandleLogout(app *App, args Args, console *Console) error {
	if err := app.Auth.SignOut(); err != nil {
		return err
	}
	if args.JSON {
		return writeJSONResponse(console.Out, "logout", nil, nil)
	}
	fmt.Fprintf(console.Out, "%s Signed out\n", successMark())
	return nil
}

// =============================================================================
// WHOAMI / MFA
// =============================================================================

// HandleWhoami implements "medassist whoami".
func HandleWhoami(app *App, args Args, console *Console) error {
	user, err := app.CurrentUser()
	if err != nil {
		return err
	}
	expiry := app.Auth.SessionExpiry()
	if args.JSON {
		return writeJSONResponse(console.Out, "whoami", map[string]any{
			"user":       user,
			"expires_at": expiry,
		}, nil)
	}
	fmt.Fprintf(console.Out, "%s %s\n", renderLabel("Email"), ValueStyle.Render(user.Email))
	fmt.Fprintf(console.Out, "%s %s\n", renderLabel("User ID"), ValueStyle.Render(user.ID))
	fmt.Fprintf(console.Out, "%s %s\n", renderLabel("Session ends"),
		ValueStyle.Render(expiry.Local().Format("2006-01-02 15:04")))
	return nil
}

// HandleMFAEnroll implements "medassist mfa-enroll".
func HandleMFAEnroll(app *App, args Args, console *Console) error {
	user, err := app.CurrentUser()
	if err != nil {
		return err
	}
	url, err := app.Auth.EnrollTOTP(user.Email)
	if err != nil {
		return err
	}
	app.Logger.Info("totp enrolled", "user_id", user.ID)
	if args.JSON {
		return writeJSONResponse(console.Out, "mfa-enroll", map[string]string{"otpauth_url": url}, nil)
	}
	fmt.Fprintln(console.Out, TitleStyle.Render("Authenticator enrolled"))
	fmt.Fprintln(console.Out, "Add this URL to your authenticator app:")
	fmt.Fprintln(console.Out, ValueStyle.Render(url))
	fmt.Fprintln(console.Out, DimStyle.Render("Future sign-ins ask for the 6-digit code."))
	return nil
}

func emailArg(p *ArgParser, console *Console) (string, error) {
	email := p.FlagOrDefault("email", p.Positional(0))
	if email != "" {
		return email, nil
	}
	email, err := console.ReadLine("Email: ")
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "required"}
	}
	return email, nil
}
