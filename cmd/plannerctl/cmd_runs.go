// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPlanner/services/planner/resilience"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runsUserID     string
	runsDomain     string
	runsJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List interrupted runs eligible for resumption",
	Long: `Lists runs for a user and domain that started but never reached a
terminal state. Pass a listed run ID to 'generate --resume' to pick the
run up from its last completed phase.

Examples:
  plannerctl runs --user alice --domain fitness
  plannerctl runs --user alice --domain fitness --json`,
	RunE: runRunsCommand,
}

func init() {
	runsCmd.Flags().StringVarP(&runsUserID, "user", "u", "", "User ID (required)")
	runsCmd.Flags().StringVarP(&runsDomain, "domain", "d", "", "Planning domain (required)")
	runsCmd.Flags().BoolVar(&runsJSONOutput, "json", false, "Output as JSON")
	runsCmd.MarkFlagRequired("user")
	runsCmd.MarkFlagRequired("domain")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRunsCommand(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL)

	query := url.Values{}
	query.Set("user_id", runsUserID)
	query.Set("domain", runsDomain)

	var response struct {
		Runs []resilience.RunRecord `json:"runs"`
	}
	if err := client.getJSON(cmd.Context(), "/v1/runs/recoverable", query, &response); err != nil {
		return err
	}

	if runsJSONOutput {
		return printJSON(response.Runs)
	}

	if len(response.Runs) == 0 {
		fmt.Println("No recoverable runs.")
		return nil
	}
	for _, run := range response.Runs {
		fmt.Printf("%s  phase=%s  started=%s\n",
			run.RunID, run.CurrentPhase, run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
