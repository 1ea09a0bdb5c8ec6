package appfsm

import (
	"github.com/ternarybob/forge/pkg/beam"
	"github.com/ternarybob/forge/pkg/llmclient"
)

// StageToolset is the tool surface every stage actor exposes to the model,
// per spec.md §4.D step 3: read_file, delete_file, complete, plus whatever
// stage-specific extras the caller appends.
func StageToolset(extra ...llmclient.Tool) []llmclient.Tool {
	base := []llmclient.Tool{
		{
			Name:        "read_file",
			Description: "Read the current contents of a file in the workspace.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        "delete_file",
			Description: "Delete a file from the workspace.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        "complete",
			Description: "Declare the stage finished and run the validator battery against the current workspace.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
	return append(base, extra...)
}

// BuildOptions parameterises the four concrete stage actors built by
// NewActors: the beam search bounds (spec.md §4.D), the template workspace
// each stage starts from, and the completion client each beam expansion
// call uses.
type BuildOptions struct {
	Client      *llmclient.Client
	BeamWidth   int
	MaxDepth    int
	MaxTokens   int
	Temperature float64
	Template    TemplateConfig
}

// NewActors builds the Draft/Handlers/Index/Frontend stage actors with the
// validator batteries spec.md §4.F names for each: tsc --noEmit and
// drizzle-kit push --force (Postgres-backed) for Draft; tsc and bun test
// (Postgres-backed) for Handlers; tsc alone for Index; a frontend build and
// lint for Frontend.
func NewActors(opts BuildOptions) Actors {
	draftTemplate := opts.Template
	draftTemplate.Allowed = []string{"src/schema.ts", "src/db/schema.ts", "src/handlers/"}

	handlersTemplate := opts.Template
	handlersTemplate.Allowed = []string{"src/handlers/"}
	handlersTemplate.Protected = append(append([]string(nil), opts.Template.Protected...), "src/schema.ts", "src/db/schema.ts")

	indexTemplate := opts.Template
	indexTemplate.Allowed = []string{"src/index.ts"}

	frontendTemplate := opts.Template
	frontendTemplate.Allowed = []string{"src/components/"}
	frontendTemplate.Protected = append(append([]string(nil), opts.Template.Protected...), "src/handlers/", "src/index.ts", "src/schema.ts")

	return Actors{
		Draft: &StageActor{
			Name:     "Draft",
			Template: draftTemplate,
			Beam: &beam.Actor{
				Client:       opts.Client,
				Tools:        StageToolset(),
				SystemPrompt: draftSystemPrompt,
				MaxTokens:    opts.MaxTokens,
				Temperature:  opts.Temperature,
				BeamWidth:    opts.BeamWidth,
				MaxDepth:     opts.MaxDepth,
				Battery: beam.NewBattery(
					beam.NewShellValidator("tsc", []string{"bunx", "tsc", "--noEmit"}),
					&beam.ShellValidator{
						Label:         "drizzle-kit push",
						Cmd:           []string{"bunx", "drizzle-kit", "push", "--force"},
						NeedsPostgres: true,
					},
				),
			},
		},
		Handlers: &StageActor{
			Name:     "Handlers",
			Template: handlersTemplate,
			Beam: &beam.Actor{
				Client:       opts.Client,
				Tools:        StageToolset(),
				SystemPrompt: handlersSystemPrompt,
				MaxTokens:    opts.MaxTokens,
				Temperature:  opts.Temperature,
				BeamWidth:    opts.BeamWidth,
				MaxDepth:     opts.MaxDepth,
				Battery: beam.NewBattery(
					beam.NewShellValidator("tsc", []string{"bunx", "tsc", "--noEmit"}),
					&beam.ShellValidator{
						Label:         "bun test",
						Cmd:           []string{"bun", "test"},
						NeedsPostgres: true,
					},
				),
			},
		},
		Index: &StageActor{
			Name:     "Index",
			Template: indexTemplate,
			Beam: &beam.Actor{
				Client:       opts.Client,
				Tools:        StageToolset(),
				SystemPrompt: indexSystemPrompt,
				MaxTokens:    opts.MaxTokens,
				Temperature:  opts.Temperature,
				BeamWidth:    opts.BeamWidth,
				MaxDepth:     opts.MaxDepth,
				Battery:      beam.NewBattery(beam.NewShellValidator("tsc", []string{"bunx", "tsc", "--noEmit"})),
			},
		},
		Frontend: &StageActor{
			Name:     "Frontend",
			Template: frontendTemplate,
			Beam: &beam.Actor{
				Client:       opts.Client,
				Tools:        StageToolset(),
				SystemPrompt: frontendSystemPrompt,
				MaxTokens:    opts.MaxTokens,
				Temperature:  opts.Temperature,
				BeamWidth:    opts.BeamWidth,
				MaxDepth:     opts.MaxDepth,
				Battery: beam.NewBattery(
					beam.NewShellValidator("build", []string{"bun", "run", "build"}),
					beam.NewShellValidator("lint", []string{"bun", "run", "lint"}),
				),
			},
		},
	}
}

// The four stage system prompts are deliberately out of scope for this
// module (spec.md §1: "the concrete prompt texts" are an external
// collaborator); these placeholders carry only the structural instruction
// each stage's tool loop depends on.
const (
	draftSystemPrompt    = "You are drafting the initial schema and handler declarations for a tRPC application. Write src/schema.ts, src/db/schema.ts, and handler declarations, then call complete()."
	handlersSystemPrompt = "You are implementing handler bodies and their unit tests against the drafted schema. Call complete() once tsc and bun test pass."
	indexSystemPrompt    = "You are wiring src/index.ts to register every handler. Call complete() once tsc passes."
	frontendSystemPrompt = "You are building React components under src/components/ against the server's handlers. Call complete() once the build and lint pass."
)
