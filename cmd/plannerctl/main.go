// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command plannerctl is the CLI client for the AleutianPlanner service.
//
// # Usage
//
//	plannerctl generate -f request.yaml   # Generate a plan from a request file
//	plannerctl runs --user alice          # List recoverable runs
//	plannerctl plans --user alice         # List stored plans
//	plannerctl plans get <plan-id> --user alice
package main

import (
	"log"

	"github.com/spf13/cobra"
)

// serverURL is the planner service base URL, shared by all subcommands.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "plannerctl",
	Short: "CLI client for the Aleutian planning service",
	Long: `plannerctl talks to a running planner service over HTTP.

It can generate plans from YAML request files, inspect stored plans,
and list interrupted runs that are eligible for resumption.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:12310", "Planner service base URL")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(plansCmd)
}
