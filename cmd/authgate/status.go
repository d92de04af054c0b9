// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
)

const statusTimeout = 2 * time.Second

// Status is the health of a running authgate as seen through its
// observability endpoint.
type Status struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a running authgate is ready",
		Long:  `Query the readiness endpoint of a running authgate and report the result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", config.DefaultMetricsAddr, "metrics/health address of the running instance")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryStatus(cmd.Context(), cfg.addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Print(formatStatusTable(status))
	return nil
}

// queryStatus asks addr's readiness endpoint whether authgate is up.
func queryStatus(ctx context.Context, addr string) Status {
	status := Status{Addr: addr}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz/readiness", http.NoBody)
	if err != nil {
		status.Error = fmt.Sprintf("invalid address: %v", err)
		return status
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		status.Error = fmt.Sprintf("failed to read response: %v", err)
	}

	status.Running = true
	status.Ready = resp.StatusCode == http.StatusOK
	if !status.Ready && status.Error == "" {
		status.Error = strings.TrimSpace(string(body))
	}
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status Status) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tREADY\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t------\t-----\t------")

	state := "stopped"
	if status.Running {
		state = "running"
	}
	detail := status.Error
	if detail == "" {
		detail = "-"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", status.Addr, state, status.Ready, detail)

	_ = w.Flush()
	return sb.String()
}
