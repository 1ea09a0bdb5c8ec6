package appfsm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/forge/pkg/beam"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/searchtree"
	"github.com/ternarybob/forge/pkg/workspace"
)

// StageInput is what a StageActor's invoke projects from the live
// ApplicationContext: the prompt driving this stage's first turn, and any
// existing files to seed the fresh workspace with before beam search
// starts.
type StageInput struct {
	Prompt string
	Files  map[string]string
}

// TemplateConfig parameterises the base workspace a stage expands from,
// per spec.md §4.A's create(base_image, context_dir, setup_cmd[],
// protected[], allowed[]).
type TemplateConfig struct {
	BaseImage  string
	ContextDir string
	SetupCmds  [][]string
	Protected  []string
	Allowed    []string
}

// StageActor adapts a beam.Actor into an hsm.Actor[ApplicationContext]: on
// Execute it builds a fresh workspace from Template, seeds it with the
// projected input's files, starts a single-root search tree, and runs beam
// search to a validated solution.
type StageActor struct {
	Name     string
	Template TemplateConfig
	Beam     *beam.Actor
	Prompt   func(input StageInput) string

	lastFiles map[string]string
}

// Execute implements hsm.Actor[ApplicationContext].
func (s *StageActor) Execute(ctx context.Context, input any) (any, error) {
	si, ok := input.(*StageInput)
	if !ok {
		return nil, fmt.Errorf("appfsm: stage %q got unexpected invoke input %T", s.Name, input)
	}

	ws, err := workspace.Create(ctx, workspace.CreateOptions{
		BaseImage:  s.Template.BaseImage,
		ContextDir: s.Template.ContextDir,
		SetupCmds:  s.Template.SetupCmds,
		Protected:  s.Template.Protected,
		Allowed:    s.Template.Allowed,
	})
	if err != nil {
		return nil, fmt.Errorf("appfsm: stage %q create workspace: %w", s.Name, err)
	}

	for path, content := range si.Files {
		if err := ws.WriteFile(ctx, path, content, true); err != nil {
			return nil, fmt.Errorf("appfsm: stage %q seed %s: %w", s.Name, path, err)
		}
	}

	prompt := si.Prompt
	if s.Prompt != nil {
		prompt = s.Prompt(*si)
	}

	root := &beam.BaseData{
		Workspace: ws,
		Messages: []llmclient.Message{{
			Role:    llmclient.RoleUser,
			Content: []llmclient.ContentBlock{llmclient.TextRaw{Text: prompt}},
		}},
		Files: map[string]string{},
	}
	tree := searchtree.NewTree(root)

	sol, err := s.Beam.Run(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("appfsm: stage %q: %w", s.Name, err)
	}

	s.lastFiles = sol.Files
	return sol, nil
}

// Dump persists the stage's last solved file set. The live search tree and
// container are not checkpointed: by the time a checkpoint is taken between
// SSE turns, the solution's files already live in
// ApplicationContext.ServerFiles/FrontendFiles, so re-deriving them here is
// only needed for diagnostics, not for resume correctness.
func (s *StageActor) Dump() (any, error) {
	return s.lastFiles, nil
}

// Load restores the last solved file set from a checkpoint.
func (s *StageActor) Load(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var files map[string]string
	if err := json.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("appfsm: stage %q load: %w", s.Name, err)
	}
	s.lastFiles = files
	return nil
}
