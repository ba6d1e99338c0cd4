//go:build !js || !wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvcrn/turmeric/internal/app"
	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/dvcrn/turmeric/internal/store"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

const (
	notReadyRetry   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func serveCommand(cfgPath string, log zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "poll Paprika and serve the latest data over HTTP",
		Flags: serveFlags(cfgPath),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd, cfgPath, log)
		},
	}
}

func loadConfig(cfgPath string, cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, cmd)
	return cfg, nil
}

// credentialsChain tries the config file, the environment, the saved
// credentials file and optionally the keychain, in that order.
func credentialsChain(cfg *config.Config, cmd *cli.Command, log zerolog.Logger) credentials.CredentialsFetcher {
	var chain credentials.ChainCredentialsFetcher
	if f := cfg.CredentialsFetcher(); f != nil {
		chain = append(chain, f)
	}
	chain = append(chain, credentials.NewEnvCredentialsFetcher())

	credsPath := cmd.String("creds-path")
	if credsPath != "" && credentials.FileExists(credsPath) {
		log.Info().Str("path", credsPath).Msg("📄 Using filesystem credentials")
		chain = append(chain, credentials.NewFSCredentialsFetcher(credsPath))
	}

	if cmd.Bool("use-keychain") {
		email := cfg.Email
		if email == "" {
			email = os.Getenv(credentials.EmailEnv)
		}
		log.Info().Str("email", email).Msg("🔑 Using keychain credentials")
		chain = append(chain, credentials.NewKeychainCredentialsFetcherWithLogger(email, log))
	}
	return chain
}

func openStore(cfg *config.Config, account string) (app.Store, error) {
	if cfg.StatePath == "" {
		return store.NewMemory(), nil
	}
	if err := credentials.EnsureParentDir(cfg.StatePath); err != nil {
		return nil, err
	}
	return store.OpenSQLite(cfg.StatePath, account)
}

func serve(ctx context.Context, cmd *cli.Command, cfgPath string, log zerolog.Logger) error {
	cfg, err := loadConfig(cfgPath, cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	creds := credentialsChain(cfg, cmd, log)
	c, err := creds.GetCredentials()
	if err != nil {
		return fmt.Errorf("no Paprika credentials: %w", err)
	}

	st, err := openStore(cfg, c.UniqueID())
	if err != nil {
		return err
	}

	a, err := app.New(cfg, creds, app.Options{Store: st, Logger: log})
	if err != nil {
		st.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := app.NewServer(a, log)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := startWithRetry(ctx, a, log); err != nil {
		shutdown(httpServer, srv, a, log)
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			next, err := loadConfig(cfgPath, cmd)
			if err == nil {
				err = a.Reload(ctx, next)
			}
			if err != nil {
				log.Error().Err(err).Str("path", cfgPath).Msg("Reload failed, keeping current configuration")
			}
		case err, ok := <-serveErr:
			if !ok {
				serveErr = nil
				continue
			}
			shutdown(httpServer, srv, a, log)
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			shutdown(httpServer, srv, a, log)
			return nil
		}
	}
}

// startWithRetry keeps retrying a not-ready start, login outages included.
// Credentials the login endpoints rejected are final.
func startWithRetry(ctx context.Context, a *app.App, log zerolog.Logger) error {
	for {
		err := a.Start(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, app.ErrNotReady) {
			return err
		}

		log.Warn().Err(err).Dur("retry_in", notReadyRetry).Msg("⚠️  First refresh failed, retrying")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(notReadyRetry):
		}
	}
}

func shutdown(httpServer *http.Server, srv interface{ Close() }, a *app.App, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not finish cleanly")
	}
	if err := a.Stop(); err != nil {
		log.Warn().Err(err).Msg("Stop failed")
	}
	srv.Close()
}
