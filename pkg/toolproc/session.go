// Package toolproc bridges the LLM tool-call loop to the Application FSM:
// a process-local session registry keyed "application_id:trace_id", and a
// Processor exposing start_application/confirm_state/provide_feedback/
// complete/get_state/get_available_actions/get_state_output as both native
// llmclient tools and an MCP surface.
package toolproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/forge/pkg/appfsm"
	"github.com/ternarybob/forge/pkg/hsm"
)

// Status is the processor step's report of whether the model still has work
// queued (WIP) or the turn ended with no pending tool use (IDLE).
type Status string

const (
	StatusWIP  Status = "WIP"
	StatusIdle Status = "IDLE"
)

// Session wraps one Application FSM instance plus the identifiers it was
// created under. A Session's Machine is only ever touched by its own
// goroutine; mu serialises Send calls within one session per spec.md §5.
type Session struct {
	ApplicationID string
	TraceID       string

	mu      sync.Mutex
	machine *hsm.Machine[appfsm.ApplicationContext]
	started bool
}

func sessionKey(applicationID, traceID string) string {
	return applicationID + ":" + traceID
}

// Registry is the process-local session map, guarded by a single mutex per
// spec.md §5's "session map is shared and guarded" rule.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newActor func() appfsm.Actors
}

// NewRegistry creates an empty registry. newActors builds a fresh Actors
// bundle per session: StageActor carries mutable per-run state (lastFiles),
// so actors are never shared across sessions.
func NewRegistry(newActors func() appfsm.Actors) *Registry {
	return &Registry{sessions: make(map[string]*Session), newActor: newActors}
}

// GetOrCreate returns the existing session for the key, or builds a fresh
// one rooted at a freshly-built Application FSM.
func (r *Registry) GetOrCreate(applicationID, traceID string) *Session {
	key := sessionKey(applicationID, traceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}

	s := &Session{
		ApplicationID: applicationID,
		TraceID:       traceID,
		machine:       appfsm.Build(r.newActor()),
	}
	r.sessions[key] = s
	return s
}

// Get returns the session for the key without creating one.
func (r *Registry) Get(applicationID, traceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey(applicationID, traceID)]
	return s, ok
}

// Discard removes a session, per spec.md §3: "discarded when the request
// completes without persisted agent state."
func (r *Registry) Discard(applicationID, traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey(applicationID, traceID))
}

// Restore replaces a session's machine with one loaded from a checkpoint,
// used when the incoming request supplies agent_state (spec.md §6).
func (r *Registry) Restore(applicationID, traceID string, cp *hsm.Checkpoint) (*Session, error) {
	m := appfsm.Build(r.newActor())
	if err := m.Load(cp, func() *appfsm.ApplicationContext { return appfsm.NewApplicationContext("") }); err != nil {
		return nil, fmt.Errorf("toolproc: restore session %s:%s: %w", applicationID, traceID, err)
	}

	s := &Session{ApplicationID: applicationID, TraceID: traceID, machine: m, started: true}

	r.mu.Lock()
	r.sessions[sessionKey(applicationID, traceID)] = s
	r.mu.Unlock()

	return s, nil
}

// start begins the FSM with the given prompt. Calling it a second time on an
// already-started session is a no-op; start_application only creates the FSM
// "if none" per spec.md §4.G.
func (s *Session) start(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.machine.Context().UserPrompt = prompt
	if err := s.machine.Start(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *Session) send(ctx context.Context, ev hsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Send(ctx, ev)
}

func (s *Session) leaf() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Leaf()
}

// Leaf returns the FSM's current state name, for callers outside this
// package (pkg/sseserver mapping FSM state to SSE event kind).
func (s *Session) Leaf() string { return s.leaf() }

func (s *Session) context() *appfsm.ApplicationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Context()
}

// Context returns the session's live ApplicationContext.
func (s *Session) Context() *appfsm.ApplicationContext { return s.context() }

// Checkpoint dumps the session's machine for persistence (pkg/snapshot).
func (s *Session) Checkpoint() (*hsm.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Dump()
}

var reviewStates = map[string]bool{
	"ReviewDraft": true, "ReviewHandlers": true, "ReviewIndex": true, "ReviewFrontend": true,
}

var terminalStates = map[string]bool{"Complete": true, "Failure": true}
