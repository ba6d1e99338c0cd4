//go:build !js || !wasm

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	log := logger.New()
	cfgPath := config.DefaultPath()

	root := &cli.Command{
		Name:  "turmeric",
		Usage: "keep a Paprika grocery list and meal plan in sync",
		Commands: []*cli.Command{
			serveCommand(cfgPath, log),
			loginCommand(cfgPath, log),
			statusCommand(cfgPath),
			refreshCommand(cfgPath),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
