package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/germanamz/parley/pkg/client"
	"github.com/germanamz/parley/pkg/failure"
	"github.com/germanamz/parley/pkg/gateway"
	"github.com/germanamz/parley/pkg/session"
)

const (
	modeLogin  = "login"
	modeSignup = "signup"
)

// authenticate prompts until the session is authenticated or the user aborts
// a form, in which case huh.ErrUserAborted is returned.
func authenticate(ctx context.Context, c *client.Client, signup bool) error {
	mode := modeLogin
	if signup {
		mode = modeSignup
	}

	for c.Session.Status() != session.StatusAuthenticated {
		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Welcome to parley").
				Options(
					huh.NewOption("Log in", modeLogin),
					huh.NewOption("Create an account", modeSignup),
				).
				Value(&mode),
		)).Run(); err != nil {
			return err
		}

		var err error
		if mode == modeSignup {
			err = signupForm(ctx, c)
		} else {
			err = loginForm(ctx, c)
		}

		if errors.Is(err, huh.ErrUserAborted) {
			return err
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(failure.MessageOf(err)))
		}
	}

	return nil
}

func loginForm(ctx context.Context, c *client.Client) error {
	var req gateway.LoginRequest

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&req.Email),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&req.Password),
	)).Run(); err != nil {
		return err
	}

	return c.Login(ctx, req)
}

func signupForm(ctx context.Context, c *client.Client) error {
	var req gateway.SignupRequest

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Full name").Value(&req.FullName),
		huh.NewInput().Title("Email").Value(&req.Email),
		huh.NewInput().Title("Password").Description("At least 6 characters").EchoMode(huh.EchoModePassword).Value(&req.Password),
	)).Run(); err != nil {
		return err
	}

	return c.Signup(ctx, req)
}
