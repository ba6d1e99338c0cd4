//go:build !js || !wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/dvcrn/turmeric/internal/report"
	"github.com/dvcrn/turmeric/internal/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func statusCommand(cfgPath string) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the schedule of a running daemon",
		Flags: []cli.Flag{
			addrFlag(cfgPath),
			&cli.BoolFlag{Name: "json", Usage: "print the raw status JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			body, err := call(ctx, http.MethodGet, cmd.String("addr")+"/v1/status", "")
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				_, err := os.Stdout.Write(body)
				return err
			}

			var st coordinator.Status
			if err := json.Unmarshal(body, &st); err != nil {
				return fmt.Errorf("failed to decode status: %w", err)
			}
			return report.Render(os.Stdout, st, time.Now())
		},
	}
}

func refreshCommand(cfgPath string) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "force a running daemon to refresh groceries and meals now",
		Flags: []cli.Flag{
			addrFlag(cfgPath),
			&cli.StringFlag{
				Name:    "admin-key",
				Usage:   "admin API key of the daemon",
				Sources: cli.EnvVars(server.AdminKeyEnv),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			body, err := call(ctx, http.MethodPost, cmd.String("addr")+"/admin/refresh", cmd.String("admin-key"))
			if err != nil {
				return err
			}
			var resp struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Printf("refresh: %s\n", resp.Status)
			return nil
		},
	}
}

func call(ctx context.Context, method, url, adminKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if adminKey != "" {
		req.Header.Set("X-API-Key", adminKey)
	}

	resp, err := server.NewHTTPClient(zerolog.Nop()).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
