package spider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// StateVersion is the current schema version
	StateVersion = 1

	// StateFilename is the name of the state file inside the index directory
	StateFilename = "state.json"
)

// State records the progress of spider runs.
type State struct {
	Version     int          `json:"version"`
	LastSuccess time.Time    `json:"last_success"`
	Run         RunState     `json:"last_run"`
	mu          sync.RWMutex `json:"-"`
}

// RunState describes one spider run.
type RunState struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Batches    int       `json:"batches"`
	Processed  int       `json:"processed"`
	Deleted    int       `json:"deleted"`
	Retries    int       `json:"retries"`
	Error      string    `json:"error,omitempty"`
}

// Running reports whether the run has not finished.
func (r RunState) Running() bool {
	return !r.StartedAt.IsZero() && r.FinishedAt.IsZero()
}

// NewState creates an empty state.
func NewState() *State {
	return &State{Version: StateVersion}
}

// StatePath returns the path of the state file for an index directory.
func StatePath(indexDir string) string {
	return filepath.Join(indexDir, StateFilename)
}

// LoadState reads the state from disk, or creates a new one if it doesn't exist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &state, nil
}

// Save writes the state to disk atomically.
func (s *State) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// Begin starts a new run and returns its id.
func (s *State) Begin(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run = RunState{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now(),
	}
	return s.Run.ID
}

// Finish marks the current run finished, recording err if it failed.
func (s *State) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.FinishedAt = time.Now()
	if err != nil {
		s.Run.Error = err.Error()
		return
	}
	s.Run.Error = ""
	s.LastSuccess = s.Run.FinishedAt
}

// AddBatch counts a drained batch.
func (s *State) AddBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.Batches++
}

// AddProcessed counts a reconciled pending record.
func (s *State) AddProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.Processed++
}

// AddDeleted counts a tombstoned or removed record.
func (s *State) AddDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.Deleted++
}

// AddRetry counts a retried handler attempt.
func (s *State) AddRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.Retries++
}

// Snapshot returns a copy of the current run.
func (s *State) Snapshot() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Run
}
