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

	"github.com/AleutianAI/AleutianPlanner/services/planner/persist"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	plansUserID     string
	plansJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List stored plans for a user",
	Long: `Lists plans previously generated and saved for a user, newest first.

Examples:
  plannerctl plans --user alice
  plannerctl plans get 4f2a... --user alice`,
	RunE: runPlansCommand,
}

var plansGetCmd = &cobra.Command{
	Use:   "get <plan-id>",
	Short: "Fetch one stored plan by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlansGetCommand,
}

func init() {
	plansCmd.PersistentFlags().StringVarP(&plansUserID, "user", "u", "", "User ID (required)")
	plansCmd.PersistentFlags().BoolVar(&plansJSONOutput, "json", false, "Output as JSON")
	plansCmd.MarkPersistentFlagRequired("user")

	plansCmd.AddCommand(plansGetCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runPlansCommand(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL)

	query := url.Values{}
	query.Set("user_id", plansUserID)

	var response struct {
		Plans []persist.StoredPlan `json:"plans"`
	}
	if err := client.getJSON(cmd.Context(), "/v1/plans", query, &response); err != nil {
		return err
	}

	if plansJSONOutput {
		return printJSON(response.Plans)
	}

	if len(response.Plans) == 0 {
		fmt.Println("No stored plans.")
		return nil
	}
	for _, plan := range response.Plans {
		fmt.Printf("%s  [%s]  %s  (%d goals, %d tasks)\n",
			plan.ID, plan.Domain, plan.Title, len(plan.Goals), len(plan.Tasks))
	}
	return nil
}

func runPlansGetCommand(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL)

	query := url.Values{}
	query.Set("user_id", plansUserID)

	var plan persist.StoredPlan
	if err := client.getJSON(cmd.Context(), "/v1/plans/"+args[0], query, &plan); err != nil {
		return err
	}

	if plansJSONOutput {
		return printJSON(plan)
	}

	fmt.Printf("%s: %s [%s]\n", plan.ID, plan.Title, plan.Domain)
	for _, goal := range plan.Goals {
		fmt.Printf("  goal: %s\n", goal.Title)
		for _, milestone := range goal.Milestones {
			fmt.Printf("    milestone: %s\n", milestone.Title)
		}
	}
	for _, task := range plan.Tasks {
		fmt.Printf("  task: %s (%d min)\n", task.Title, task.EstimatedMinutes)
	}
	return nil
}
