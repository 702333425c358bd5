// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// GateError is the terminating failure raised when a checkpoint blocks
// further execution.
type GateError struct {
	Phase  string
	Issues []string
}

func (e *GateError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("checkpoint gate failed at %s", e.Phase)
	}
	return fmt.Sprintf("checkpoint gate failed at %s: %s", e.Phase, strings.Join(e.Issues, "; "))
}

// AssertCheckpoint raises a GateError when the checkpoint does not allow
// execution to continue.
//
// CanContinue is honored literally: a stage may report IsValid=false with
// CanContinue=true to mean "proceed with degraded confidence", and the
// gate must let that through rather than inferring a block from IsValid.
func AssertCheckpoint(cp datatypes.Checkpoint) error {
	if cp.CanContinue {
		return nil
	}
	return &GateError{Phase: cp.Phase, Issues: cp.CriticalIssues}
}
