// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that are used
// in database key paths. User IDs and domains become segments of badger keys,
// so a stray separator or control character would let one caller read or
// shadow another caller's records.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid user and domain identifiers.
// Allows: letters, digits, dots, hyphens, underscores, at-signs (emails).
// Max length: 128 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@\-]{0,127}$`)

// ValidateIdentifier validates a user ID or planning domain before it is
// embedded in a storage key.
//
// Valid identifiers:
//   - 1-128 characters
//   - Letters and digits
//   - Dots, hyphens, underscores
//   - At-signs, so email-style user IDs work
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentifier(userID); err != nil {
//	    return nil, fmt.Errorf("invalid user id: %w", err)
//	}
//	// Safe to use as a key segment
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must be 1-128 alphanumeric chars, dots, hyphens, underscores, or at-signs)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid values if any fail validation.
func ValidateIdentifiers(ids ...string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// SanitizeIdentifier normalizes and validates an identifier.
// Returns the trimmed, lowercased identifier if valid, or an error.
//
// Use this at API boundaries where the same user may arrive with
// different casing:
//
//	safeID, err := validation.SanitizeIdentifier(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeIdentifier(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
