//go:build !js || !wasm

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvcrn/turmeric/internal/auth"
	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/dvcrn/turmeric/internal/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

func loginCommand(cfgPath string, log zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "check Paprika credentials and optionally save them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Paprika account email",
				Sources: sources(credentials.EmailEnv, "email", cfgPath),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Paprika password (prompted when omitted)",
				Sources: cli.EnvVars(credentials.PasswordEnv),
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "write the credentials to --creds-path (mode 0600)",
			},
			credsPathFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return login(ctx, cmd, cfgPath, log)
		},
	}
}

func login(ctx context.Context, cmd *cli.Command, cfgPath string, log zerolog.Logger) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	email := cmd.String("email")
	if email == "" {
		if email, err = prompt("Email: "); err != nil {
			return err
		}
	}
	password := cmd.String("password")
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	creds := credentials.Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return err
	}

	authenticator := auth.NewAuthenticator(server.NewHTTPClient(log), cfg.LoginURLs, log)
	token, err := authenticator.Authenticate(ctx, creds)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Logged in as %s\n", creds.UniqueID())
	if exp, ok := auth.ExpiresAt(token); ok {
		fmt.Printf("   token valid until %s\n", exp.Local().Format(time.RFC1123))
	}

	if !cmd.Bool("save") {
		return nil
	}
	path := cmd.String("creds-path")
	if path == "" {
		return errors.New("no credentials path, set --creds-path")
	}
	if err := credentials.InitFromCredentials(path, creds); err != nil {
		return err
	}
	fmt.Printf("   saved to %s\n", path)
	return nil
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}

	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
