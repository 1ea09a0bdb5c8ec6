package sseserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ternarybob/forge/pkg/hsm"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/snapshot"
	"github.com/ternarybob/forge/pkg/toolproc"
)

// handleMessage implements spec.md §6's POST /message: it resolves or
// restores a session, opens a zero-buffered event channel, spawns the
// session's process, and relays every event to the client as one `data:`
// SSE record per write, in strict production order.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ApplicationID == "" || req.TraceID == "" {
		writeJSONError(w, http.StatusBadRequest, "applicationId and traceId are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess, isNew, err := s.resolveSession(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	events := make(chan Event) // zero-buffered: writers block until drained

	if s.snap != nil {
		if cp, err := sess.Checkpoint(); err == nil {
			_ = s.snap.Save(ctx, req.TraceID, snapshot.PhaseEnter, cp)
		}
	}

	go s.runSession(ctx, sess, req, isNew, events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(bw, "data: %s\n\n", data)
		bw.Flush()
		flusher.Flush()
	}

	if s.snap != nil {
		if cp, err := sess.Checkpoint(); err == nil {
			_ = s.snap.Save(ctx, req.TraceID, snapshot.PhaseExit, cp)
		}
	}

	if req.AgentState == nil || len(req.AgentState.FSMState) == 0 {
		s.registry.Discard(req.ApplicationID, req.TraceID)
	}
}

// resolveSession restores a session from agentState when supplied, per
// spec.md §6's "The server restores a session from this when present;
// otherwise it starts fresh."
func (s *Server) resolveSession(req Request) (*toolproc.Session, bool, error) {
	if req.AgentState != nil && len(req.AgentState.FSMState) > 0 {
		var cp hsm.Checkpoint
		if err := json.Unmarshal(req.AgentState.FSMState, &cp); err != nil {
			return nil, false, fmt.Errorf("invalid agentState.fsm_state: %w", err)
		}
		sess, err := s.registry.Restore(req.ApplicationID, req.TraceID, &cp)
		if err != nil {
			return nil, false, err
		}
		return sess, false, nil
	}

	_, existed := s.registry.Get(req.ApplicationID, req.TraceID)
	sess := s.registry.GetOrCreate(req.ApplicationID, req.TraceID)
	return sess, !existed, nil
}

// runSession drives one request's worth of processing and closes events
// when done, implementing the completion rules of spec.md §4.H.
func (s *Server) runSession(ctx context.Context, sess *toolproc.Session, req Request, isNew bool, events chan<- Event) {
	defer close(events)

	if isNew {
		s.emitScaffoldingEvent(ctx, req, events)
	}

	history := append([]llmclient.Message(nil), req.AllMessages...)

	for {
		if ctx.Err() != nil {
			return
		}

		produced, status, err := s.proc.Step(ctx, sess, history)
		if err != nil {
			events <- Event{
				Status:  StatusIdle,
				TraceID: req.TraceID,
				Message: EventMessage{Role: llmclient.RoleAssistant, Kind: KindRuntimeError, Content: err.Error()},
			}
			return
		}
		history = append(history, produced...)

		if status == toolproc.StatusWIP {
			events <- Event{
				Status:  StatusRunning,
				TraceID: req.TraceID,
				Message: EventMessage{Role: llmclient.RoleAssistant, Kind: KindStageResult, Content: renderProduced(produced)},
			}
			continue
		}

		s.emitTerminalEvent(sess, req, produced, events)
		return
	}
}

// emitScaffoldingEvent sends the first event of a brand-new session: the
// unmodified template diffed against the client's snapshot (or against
// itself, when no snapshot was supplied), per spec.md §4.H and the
// formalized open-question decision recorded in DESIGN.md.
func (s *Server) emitScaffoldingEvent(ctx context.Context, req Request, events chan<- Event) {
	template := s.readTemplate(req.TemplateID)

	base := template
	if len(req.AllFiles) > 0 {
		base = filesFromSnapshot(req.AllFiles)
	}

	diff := unifiedDiffFiles(template, base)
	appName, commitMessage := nameApplication(ctx, s.client, firstUserPrompt(req.AllMessages))

	events <- Event{
		Status:  StatusRunning,
		TraceID: req.TraceID,
		Message: EventMessage{
			Role:          llmclient.RoleAssistant,
			Kind:          KindStageResult,
			Content:       "scaffolding",
			UnifiedDiff:   diff,
			AppName:       appName,
			CommitMessage: commitMessage,
			DiffStat:      diffStat(diff),
		},
	}
}

// emitTerminalEvent sends the stream's single terminal event: review_result
// once the FSM reaches Complete, refinement_request while it waits on a
// Review state, or runtime_error if it landed in Failure.
func (s *Server) emitTerminalEvent(sess *toolproc.Session, req Request, produced []llmclient.Message, events chan<- Event) {
	leaf := sess.Leaf()
	content := renderProduced(produced)

	switch leaf {
	case "Complete":
		clientFiles := filesFromSnapshot(req.AllFiles)
		allFiles := sess.Context().AllFiles()
		diff := unifiedDiffFiles(clientFiles, allFiles)

		cp, _ := sess.Checkpoint()
		events <- Event{
			Status:  StatusIdle,
			TraceID: req.TraceID,
			Message: EventMessage{
				Role:        llmclient.RoleAssistant,
				Kind:        KindReviewResult,
				Content:     content,
				AgentState:  checkpointToAgentState(cp),
				UnifiedDiff: diff,
				DiffStat:    diffStat(diff),
			},
		}
	case "Failure":
		events <- Event{
			Status:  StatusIdle,
			TraceID: req.TraceID,
			Message: EventMessage{Role: llmclient.RoleAssistant, Kind: KindRuntimeError, Content: sess.Context().Error},
		}
	default:
		cp, _ := sess.Checkpoint()
		events <- Event{
			Status:  StatusIdle,
			TraceID: req.TraceID,
			Message: EventMessage{
				Role:       llmclient.RoleAssistant,
				Kind:       KindRefinementRequest,
				Content:    content,
				AgentState: checkpointToAgentState(cp),
			},
		}
	}
}

func checkpointToAgentState(cp *hsm.Checkpoint) *AgentState {
	if cp == nil {
		return nil
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil
	}
	return &AgentState{FSMState: data}
}

func renderProduced(messages []llmclient.Message) string {
	var out string
	for _, m := range messages {
		for _, b := range m.Content {
			switch v := b.(type) {
			case llmclient.TextRaw:
				out += v.Text
			case llmclient.ToolUseResult:
				out += v.Content
			}
		}
	}
	return out
}

func firstUserPrompt(messages []llmclient.Message) string {
	for _, m := range messages {
		if m.Role != llmclient.RoleUser {
			continue
		}
		for _, b := range m.Content {
			if t, ok := b.(llmclient.TextRaw); ok {
				return t.Text
			}
		}
	}
	return ""
}

// readTemplate loads the configured template tree from disk, keyed by
// templateID under cfg.Service.TemplateDir's parent (spec.md §6's template
// selection: "trpc_agent | nicegui_agent | laravel_agent | ..."). Read
// failures yield an empty template rather than failing the request; the
// scaffolding diff then degrades to showing the snapshot as all-additions.
func (s *Server) readTemplate(templateID string) map[string]string {
	dir := s.cfg.Service.TemplateDir
	if templateID != "" {
		dir = filepath.Join(filepath.Dir(dir), templateID)
	}

	files := map[string]string{}
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return nil
		}
		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		files[rel] = string(content)
		return nil
	})
	return files
}
