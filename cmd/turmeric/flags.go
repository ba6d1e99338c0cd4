//go:build !js || !wasm

package main

import (
	"fmt"

	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/credentials"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
)

// sources chains an environment variable with a key of the config file
func sources(envVar, key, cfgPath string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar(envVar),
		yaml.YAML(key, altsrc.StringSourcer(cfgPath)),
	)
}

func refreshFlag(name, key, envVar string, value int, cfgPath string) *cli.IntFlag {
	return &cli.IntFlag{
		Name:      name,
		Usage:     fmt.Sprintf("%s refresh interval in minutes (%d-%d)", key, config.MinRefresh, config.MaxRefresh),
		Value:     value,
		Sources:   sources(envVar, key, cfgPath),
		Validator: config.ValidateRefresh,
	}
}

func serveFlags(cfgPath string) []cli.Flag {
	return []cli.Flag{
		refreshFlag("groceries-refresh", "groceries_refresh", "TURMERIC_GROCERIES_REFRESH", config.DefaultGroceriesRefresh, cfgPath),
		refreshFlag("meals-refresh", "meals_refresh", "TURMERIC_MEALS_REFRESH", config.DefaultMealsRefresh, cfgPath),
		&cli.StringFlag{
			Name:    "port",
			Usage:   "HTTP listen port",
			Value:   config.DefaultPort,
			Sources: sources("PORT", "port", cfgPath),
		},
		&cli.StringFlag{
			Name:    "state",
			Usage:   "SQLite file keeping last-good payloads across restarts (empty: memory only)",
			Sources: sources("TURMERIC_STATE", "state_path", cfgPath),
		},
		&cli.BoolFlag{
			Name:  "use-keychain",
			Usage: "read the password from the macOS keychain",
		},
		credsPathFlag(),
	}
}

func credsPathFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "creds-path",
		Usage: "credentials file written by 'turmeric login --save'",
		Value: credentials.DefaultCredsPath(),
	}
}

func addrFlag(cfgPath string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "addr",
		Usage:   "address of a running turmeric daemon",
		Value:   "http://localhost:" + config.DefaultPort,
		Sources: sources("TURMERIC_ADDR", "addr", cfgPath),
	}
}

// applyFlags overlays explicitly set flags on the file config
func applyFlags(cfg *config.Config, cmd *cli.Command) {
	if cmd.IsSet("groceries-refresh") {
		cfg.GroceriesRefresh = cmd.Int("groceries-refresh")
	}
	if cmd.IsSet("meals-refresh") {
		cfg.MealsRefresh = cmd.Int("meals-refresh")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
	}
	if cmd.IsSet("state") {
		cfg.StatePath = cmd.String("state")
	}
}
