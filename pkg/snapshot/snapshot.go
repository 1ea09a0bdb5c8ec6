// Package snapshot persists hsm.Checkpoint blobs keyed "{trace_id}/{phase}.json"
// to a local directory, per spec.md §4.I.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/forge/pkg/hsm"
)

// Phase names the two points in a request's lifecycle a checkpoint is taken
// at, per spec.md §4.I.
type Phase string

const (
	PhaseEnter Phase = "fsm_enter"
	PhaseExit  Phase = "fsm_exit"
)

const (
	maxAttempts = 3
	backoffBase = 100 * time.Millisecond
	backoffMax  = 2 * time.Second
)

// Store is a keyed local-directory blob store for machine checkpoints.
// Object-store backends are a drop-in: only Save/Load's os.WriteFile/
// os.ReadFile calls would change.
type Store struct {
	Dir    string
	Logger arbor.ILogger
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir %s: %w", dir, err)
	}
	return &Store{Dir: dir, Logger: logger}, nil
}

func (s *Store) path(traceID string, phase Phase) string {
	return filepath.Join(s.Dir, traceID, string(phase)+".json")
}

// Save persists cp at "{trace_id}/{phase}.json", making up to 3 attempts with
// jittered backoff on transient filesystem errors. Failure is non-fatal to
// the caller: Save returns the last error so the caller can log it, but
// spec.md §4.I requires the request to proceed regardless.
func (s *Store) Save(ctx context.Context, traceID string, phase Phase, cp *hsm.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("snapshot: marshal checkpoint: %w", err)
	}

	p := s.path(traceID, phase)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("snapshot: create dir for %s: %w", p, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffSchedule(attempt)):
			}
		}

		if err := os.WriteFile(p, data, 0644); err != nil {
			lastErr = err
			if s.Logger != nil {
				s.Logger.Warn().Err(err).Str("path", p).Int("attempt", attempt+1).Msg("snapshot: write failed, retrying")
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("snapshot: save %s after %d attempts: %w", p, maxAttempts, lastErr)
}

// Load reads back the checkpoint at "{trace_id}/{phase}.json".
func (s *Store) Load(ctx context.Context, traceID string, phase Phase) (*hsm.Checkpoint, error) {
	data, err := os.ReadFile(s.path(traceID, phase))
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s/%s: %w", traceID, phase, err)
	}
	var cp hsm.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal %s/%s: %w", traceID, phase, err)
	}
	return &cp, nil
}

func backoffSchedule(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffMax || d <= 0 {
		d = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d))) - d/2
	d += jitter
	if d < 0 {
		d = backoffBase
	}
	return d
}
