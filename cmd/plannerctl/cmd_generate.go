// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	generateRequestFile string // YAML request file
	generateResumeRunID string // Resume a specific interrupted run
	generateJSONOutput  bool   // Output full result as JSON
)

// planRequestFile is the YAML shape of a generation request.
//
// Example file:
//
//	user_id: alice
//	domain: fitness
//	prompt: |
//	  I want to run a 10k in three months. I can train four days a week.
type planRequestFile struct {
	UserID string `yaml:"user_id" validate:"required"`
	Domain string `yaml:"domain" validate:"required"`
	Prompt string `yaml:"prompt" validate:"required,min=10"`
}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a plan from a YAML request file",
	Long: `Submits a planning request to the planner service and waits for the
full pipeline to complete.

The request file is YAML with user_id, domain, and prompt fields.

Examples:
  plannerctl generate -f request.yaml
  plannerctl generate -f request.yaml --resume 2f1c...   # Resume a run
  plannerctl generate -f request.yaml --json             # Full result`,
	RunE: runGenerateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&generateRequestFile, "file", "f", "",
		"YAML request file (required)")
	generateCmd.Flags().StringVar(&generateResumeRunID, "resume", "",
		"Resume an interrupted run by ID")
	generateCmd.Flags().BoolVar(&generateJSONOutput, "json", false,
		"Output the full result as JSON")
	generateCmd.MarkFlagRequired("file")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runGenerateCommand(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(generateRequestFile)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	var reqFile planRequestFile
	if err := yaml.Unmarshal(raw, &reqFile); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
	}
	if err := validator.New().Struct(reqFile); err != nil {
		return fmt.Errorf("invalid request file: %w", err)
	}

	request := map[string]string{
		"user_id": reqFile.UserID,
		"domain":  reqFile.Domain,
		"prompt":  reqFile.Prompt,
	}
	if generateResumeRunID != "" {
		request["resume_run_id"] = generateResumeRunID
	}

	client := newAPIClient(serverURL)
	var result datatypes.OrchestrationResult
	runErr := client.postJSON(cmd.Context(), "/v1/plans", request, &result)

	if generateJSONOutput {
		if err := printJSON(result); err != nil {
			return err
		}
		return runErr
	}

	printRunSummary(&result)
	return runErr
}

// printRunSummary renders a human-readable view of a run result.
func printRunSummary(result *datatypes.OrchestrationResult) {
	status := "FAILED"
	if result.Success {
		status = "OK"
	}
	fmt.Printf("Run %s [%s]\n", result.RunID, status)

	for _, cp := range result.Checkpoints {
		mark := "✓"
		if !cp.IsValid {
			mark = "✗"
		}
		fmt.Printf("  %s %s\n", mark, cp.Phase)
		for _, issue := range cp.CriticalIssues {
			fmt.Printf("      issue: %s\n", issue)
		}
	}
	for _, warning := range result.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	for _, errMsg := range result.Errors {
		fmt.Printf("  error: %s\n", errMsg)
	}

	if result.Plan == nil {
		return
	}
	fmt.Printf("\nPlan %s: %s\n", result.Plan.ID, result.Plan.Title)
	fmt.Printf("  %d goals, %d tasks, %d estimated minutes\n",
		len(result.Plan.Goals), result.Plan.TotalTasks, result.Plan.TotalEstimatedMinutes)
	if result.Plan.QualityScore > 0 {
		fmt.Printf("  quality score: %.2f\n", result.Plan.QualityScore)
	}
	for _, block := range result.Plan.Schedule {
		fmt.Printf("  %s %s-%s  %s\n", block.Day, block.Start, block.End, block.TaskID)
	}
}
