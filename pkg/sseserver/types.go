// Package sseserver implements the HTTP/SSE surface spec.md §4.H and §6
// describe: POST /message opens a server-sent event stream driving one
// Application FSM session to completion or its next refinement point.
package sseserver

import (
	"encoding/json"

	"github.com/ternarybob/forge/pkg/llmclient"
)

// MessageKind tags the kind of the streamed message per spec.md §4.H.
type MessageKind string

const (
	KindStageResult       MessageKind = "stage_result"
	KindReviewResult      MessageKind = "review_result"
	KindRefinementRequest MessageKind = "refinement_request"
	KindRuntimeError      MessageKind = "runtime_error"
)

// Status is the event envelope's overall status.
type Status string

const (
	StatusRunning Status = "running"
	StatusIdle    Status = "idle"
)

// FileEntry is one file in a client-supplied snapshot (spec.md §6
// "File snapshot").
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Request is the decoded POST /message body (spec.md §6).
type Request struct {
	AllMessages   []llmclient.Message `json:"allMessages"`
	ApplicationID string              `json:"applicationId"`
	TraceID       string              `json:"traceId"`
	AgentState    *AgentState         `json:"agentState,omitempty"`
	AllFiles      []FileEntry         `json:"allFiles,omitempty"`
	TemplateID    string              `json:"templateId,omitempty"`
	Settings      map[string]any      `json:"settings,omitempty"`
}

// AgentState is the opaque round-trip object spec.md §6 describes:
// structurally `{fsm_state: MachineCheckpoint}`.
type AgentState struct {
	FSMState json.RawMessage `json:"fsm_state"`
}

// EventMessage is the `message` field of one SSE record.
type EventMessage struct {
	Role          llmclient.Role `json:"role"`
	Kind          MessageKind    `json:"kind"`
	Content       string         `json:"content"`
	AgentState    *AgentState    `json:"agent_state,omitempty"`
	UnifiedDiff   string         `json:"unified_diff,omitempty"`
	AppName       string         `json:"app_name,omitempty"`
	CommitMessage string         `json:"commit_message,omitempty"`
	DiffStat      []FileStat     `json:"diff_stat,omitempty"`
}

// FileStat mirrors pkg/diffstat.FileStat for the SSE wire payload.
type FileStat struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// Event is one `data:` SSE record, serialised whole per spec.md §4.H.
type Event struct {
	Status  Status       `json:"status"`
	TraceID string       `json:"traceId"`
	Message EventMessage `json:"message"`
}
