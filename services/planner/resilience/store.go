// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience persists orchestration run state so an interrupted
// run can resume from its last completed phase.
//
// Only the run record is durable: the in-memory planning context is
// rehydrated from per-phase serialized results on resume. A run with no
// terminal marker is "recoverable". Phase execution is at-least-once: a
// crash between a phase finishing and its result persisting means the
// phase's workers run again on resume.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/storage/badgerstore"
)

var (
	// ErrInvalidInput indicates a malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")
)

// keySegmentPattern restricts user ids and domains to characters safe
// for use in store keys.
var keySegmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// RunRecord is the durable state of one orchestration run.
type RunRecord struct {
	RunID        string                     `json:"run_id"`
	UserID       string                     `json:"user_id"`
	Domain       string                     `json:"domain"`
	CurrentPhase string                     `json:"current_phase"`
	PhaseResults map[string]json.RawMessage `json:"phase_results"`
	CreatedAt    time.Time                  `json:"created_at"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
	Terminal     bool                       `json:"terminal"`
}

// RunContext is the in-memory handle for a run being executed.
//
// Warnings accumulates non-fatal persistence problems; the orchestrator
// surfaces them on the final result instead of aborting the run.
type RunContext struct {
	Record   *RunRecord
	Resumed  bool
	Warnings []string
}

// Store is the badger-backed resilience store.
//
// Writes for the same (userID, domain) pair are serialized through a
// keyed mutex so two concurrent resumptions cannot corrupt one record.
// Distinct pairs proceed in parallel.
type Store struct {
	db     *badgerstore.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a resilience store on the given database.
func NewStore(db *badgerstore.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db must not be nil", ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// runKey builds the store key for a run record.
func runKey(userID, domain, runID string) []byte {
	return []byte("run/" + userID + "/" + domain + "/" + runID)
}

// runPrefix builds the iteration prefix for a (user, domain) pair.
func runPrefix(userID, domain string) []byte {
	return []byte("run/" + userID + "/" + domain + "/")
}

// lockFor returns the write mutex for a (userID, domain) pair.
func (s *Store) lockFor(userID, domain string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "/" + domain
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func validateSegment(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, name)
	}
	if !keySegmentPattern.MatchString(value) {
		return fmt.Errorf("%w: %s must match [a-zA-Z0-9_.-]+, got %q", ErrInvalidInput, name, value)
	}
	return nil
}

// GetRecoverableRuns lists non-terminal runs for a user and domain,
// most recent first.
func (s *Store) GetRecoverableRuns(ctx context.Context, userID, domain string) ([]RunRecord, error) {
	if err := validateSegment("userID", userID); err != nil {
		return nil, err
	}
	if err := validateSegment("domain", domain); err != nil {
		return nil, err
	}

	var runs []RunRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix(userID, domain)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec RunRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					// A corrupt record is skipped, not fatal: it cannot be
					// resumed either way.
					s.logger.Warn("skipping unreadable run record",
						slog.String("key", string(it.Item().Key())),
						slog.String("error", err.Error()))
					return nil
				}
				if !rec.Terminal {
					runs = append(runs, rec)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recoverable runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// CreateContext starts or resumes a run.
//
// Description:
//
//	With an explicit resumeRunID, loads that run (ErrRunNotFound if
//	absent or already terminal). With an empty resumeRunID, resumes the
//	most recent recoverable run for (userID, domain) if one exists,
//	otherwise creates and persists a fresh record.
//
// Outputs:
//
//	*RunContext - Handle for the run. Resumed reports whether an
//	    existing record was picked up.
//	error - Non-nil on invalid input or storage failure.
func (s *Store) CreateContext(ctx context.Context, userID, domain, resumeRunID string) (*RunContext, error) {
	if err := validateSegment("userID", userID); err != nil {
		return nil, err
	}
	if err := validateSegment("domain", domain); err != nil {
		return nil, err
	}

	lock := s.lockFor(userID, domain)
	lock.Lock()
	defer lock.Unlock()

	if resumeRunID != "" {
		rec, err := s.load(ctx, userID, domain, resumeRunID)
		if err != nil {
			return nil, err
		}
		if rec.Terminal {
			return nil, fmt.Errorf("%w: run %s is already complete", ErrRunNotFound, resumeRunID)
		}
		s.logger.Info("resuming run",
			slog.String("run_id", rec.RunID),
			slog.String("current_phase", rec.CurrentPhase))
		return &RunContext{Record: rec, Resumed: true}, nil
	}

	recoverable, err := s.GetRecoverableRuns(ctx, userID, domain)
	if err != nil {
		return nil, err
	}
	if len(recoverable) > 0 {
		rec := recoverable[0]
		s.logger.Info("auto-resuming most recent recoverable run",
			slog.String("run_id", rec.RunID),
			slog.String("current_phase", rec.CurrentPhase))
		return &RunContext{Record: &rec, Resumed: true}, nil
	}

	rec := &RunRecord{
		RunID:        uuid.NewString(),
		UserID:       userID,
		Domain:       domain,
		PhaseResults: make(map[string]json.RawMessage),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist new run: %w", err)
	}

	s.logger.Info("created run",
		slog.String("run_id", rec.RunID),
		slog.String("user_id", userID),
		slog.String("domain", domain))
	return &RunContext{Record: rec}, nil
}

// ExecutePhase runs fn unless the phase already has a persisted result.
//
// Description:
//
//	If the run record already holds a result for phaseName, that result
//	is returned without invoking fn — this is what lets a restarted
//	process skip straight to the first incomplete phase. Otherwise fn
//	runs, its result is serialized and persisted, and the raw bytes are
//	returned. A persistence failure does not fail the phase: it is
//	logged, recorded on the RunContext, and forward progress continues.
//
// Outputs:
//
//	json.RawMessage - The phase result, freshly computed or restored.
//	bool - True if the result was restored from the store.
//	error - fn's error, or a serialization error. Never a persistence
//	    error.
func (s *Store) ExecutePhase(
	ctx context.Context,
	rc *RunContext,
	phaseName string,
	fn func(context.Context) (any, error),
) (json.RawMessage, bool, error) {
	if rc == nil || rc.Record == nil {
		return nil, false, fmt.Errorf("%w: run context must not be nil", ErrInvalidInput)
	}
	if phaseName == "" {
		return nil, false, fmt.Errorf("%w: phase name must not be empty", ErrInvalidInput)
	}

	if raw, ok := rc.Record.PhaseResults[phaseName]; ok {
		s.logger.Info("phase result restored from store",
			slog.String("run_id", rc.Record.RunID),
			slog.String("phase", phaseName))
		return raw, true, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, false, fmt.Errorf("serialize %s result: %w", phaseName, err)
	}

	lock := s.lockFor(rc.Record.UserID, rc.Record.Domain)
	lock.Lock()
	rc.Record.PhaseResults[phaseName] = raw
	rc.Record.CurrentPhase = phaseName
	saveErr := s.save(ctx, rc.Record)
	lock.Unlock()

	if saveErr != nil {
		// Non-fatal: the run keeps going, but a crash before the next
		// successful save will re-execute this phase.
		s.logger.Error("failed to persist phase result",
			slog.String("run_id", rc.Record.RunID),
			slog.String("phase", phaseName),
			slog.String("error", saveErr.Error()))
		rc.Warnings = append(rc.Warnings,
			fmt.Sprintf("phase %s result not persisted: %v", phaseName, saveErr))
	}

	return raw, false, nil
}

// Complete marks the run terminal so it is no longer recoverable.
func (s *Store) Complete(ctx context.Context, rc *RunContext) error {
	if rc == nil || rc.Record == nil {
		return fmt.Errorf("%w: run context must not be nil", ErrInvalidInput)
	}

	lock := s.lockFor(rc.Record.UserID, rc.Record.Domain)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	rc.Record.Terminal = true
	rc.Record.CompletedAt = &now

	if err := s.save(ctx, rc.Record); err != nil {
		return fmt.Errorf("mark run complete: %w", err)
	}

	s.logger.Info("run complete",
		slog.String("run_id", rc.Record.RunID))
	return nil
}

// load reads a run record by id.
func (s *Store) load(ctx context.Context, userID, domain, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(userID, domain, runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// save writes a run record. Caller holds the (userID, domain) lock.
func (s *Store) save(ctx context.Context, rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(runKey(rec.UserID, rec.Domain, rec.RunID), data)
	})
}
