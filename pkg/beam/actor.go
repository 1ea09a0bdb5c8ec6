package beam

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/searchtree"
	"github.com/ternarybob/forge/pkg/workspace"
)

// BaseData is the per-node payload carried by the beam's search tree: the
// workspace cloned for this branch, the messages appended at this node
// only, and the files written at this node only. ShouldBranch implements
// searchtree.Brancher for nodes the actor flags for width-degrading fanout.
type BaseData struct {
	Workspace    *workspace.Workspace
	Messages     []llmclient.Message
	Files        map[string]string
	shouldBranch bool
}

// ShouldBranch reports whether this node opted into should_branch fanout.
func (b *BaseData) ShouldBranch() bool { return b.shouldBranch }

// MarkShouldBranch flags a node as eligible for beam-width fanout on its
// next selection round, per spec.md §4.D and the open-question resolution
// in DESIGN.md.
func (b *BaseData) MarkShouldBranch() { b.shouldBranch = true }

// Solution is the first fully-validated leaf produced by a Run, with the
// trajectory-aggregated file view (later nodes override earlier ones).
type Solution struct {
	Node      *searchtree.Node[*BaseData]
	Workspace *workspace.Workspace
	Files     map[string]string
}

// Actor drives the beam-search generative step described in spec.md §4.D.
type Actor struct {
	Client       *llmclient.Client
	Tools        []llmclient.Tool
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	BeamWidth    int
	MaxDepth     int
	Battery      *Battery
	Logger       arbor.ILogger
}

// Run expands tree until a leaf passes the validator battery or the
// candidate pool empties, in which case it returns an *ActorExhaustionError.
func (a *Actor) Run(ctx context.Context, tree *searchtree.Tree[*BaseData]) (*Solution, error) {
	expanded := 0

	for {
		candidates := a.selectCandidates(tree)
		if len(candidates) == 0 {
			return nil, &ActorExhaustionError{Expanded: expanded}
		}

		type outcome struct {
			child  *searchtree.Node[*BaseData]
			solved bool
			err    error
		}

		results := make([]outcome, len(candidates))
		var wg sync.WaitGroup
		for i, parent := range candidates {
			wg.Add(1)
			go func(i int, parent *searchtree.Node[*BaseData]) {
				defer wg.Done()
				child, solved, err := a.expandOne(ctx, tree, parent)
				results[i] = outcome{child: child, solved: solved, err: err}
			}(i, parent)
		}
		wg.Wait()
		expanded += len(candidates)

		for _, r := range results {
			if r.err != nil {
				if a.Logger != nil {
					a.Logger.Warn().Err(r.err).Msg("beam: branch abandoned after container error")
				}
				continue
			}
			if r.solved {
				return a.buildSolution(r.child), nil
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// selectCandidates implements step 1 of the loop: all expandable leaves at
// depth <= MaxDepth, the root replicated BeamWidth times when it is itself
// the sole leaf, and should_branch leaves fanned out to BeamWidth (degrading
// to 1 once a sibling already exists under that parent).
func (a *Actor) selectCandidates(tree *searchtree.Tree[*BaseData]) []*searchtree.Node[*BaseData] {
	if a.BeamWidth <= 0 {
		return nil
	}

	root := tree.Root()
	leaves := collectLeaves(root)

	if len(leaves) == 1 && leaves[0] == root {
		if root.Depth() > a.MaxDepth {
			return nil
		}
		candidates := make([]*searchtree.Node[*BaseData], 0, a.BeamWidth)
		for i := 0; i < a.BeamWidth; i++ {
			candidates = append(candidates, root)
		}
		return candidates
	}

	var candidates []*searchtree.Node[*BaseData]
	for _, leaf := range leaves {
		if leaf.Depth() > a.MaxDepth {
			continue
		}
		width := 1
		if leaf.ShouldBranch() {
			width = a.BeamWidth
		}
		for i := 0; i < width; i++ {
			candidates = append(candidates, leaf)
		}
	}
	return candidates
}

func collectLeaves(root *searchtree.Node[*BaseData]) []*searchtree.Node[*BaseData] {
	children := root.Children()
	if len(children) == 0 {
		return []*searchtree.Node[*BaseData]{root}
	}
	var leaves []*searchtree.Node[*BaseData]
	for _, c := range children {
		leaves = append(leaves, collectLeaves(c)...)
	}
	return leaves
}

// expandOne runs step 2 (expand) and step 3 (evaluate) for one parent: a
// single LLM call over the parent's trajectory, a cloned workspace, file
// writes and tool execution against it, and the resulting child node.
func (a *Actor) expandOne(ctx context.Context, tree *searchtree.Tree[*BaseData], parent *searchtree.Node[*BaseData]) (*searchtree.Node[*BaseData], bool, error) {
	var messages []llmclient.Message
	for _, n := range parent.Trajectory() {
		messages = append(messages, n.Data.Messages...)
	}

	req := &llmclient.CompletionRequest{
		Messages:     messages,
		MaxTokens:    a.MaxTokens,
		Model:        a.Model,
		Temperature:  a.Temperature,
		Tools:        a.Tools,
		SystemPrompt: a.SystemPrompt,
	}

	comp, err := a.Client.Complete(ctx, req)
	if err != nil {
		return nil, false, err
	}

	ws, err := parent.Data.Workspace.Clone(ctx)
	if err != nil {
		return nil, false, err
	}

	assistantMsg := llmclient.Message{Role: llmclient.RoleAssistant, Content: comp.Content}

	var modified bool
	out, err := runTools(ctx, ws, comp, a.Battery, &modified)
	if err != nil {
		return nil, false, err
	}

	childData := &BaseData{
		Workspace: ws,
		Messages:  []llmclient.Message{assistantMsg},
		Files:     out.files,
	}

	switch {
	case len(out.feedback) > 0:
		childData.Messages = append(childData.Messages, llmclient.Message{
			Role:    llmclient.RoleUser,
			Content: out.feedback,
		})
	case !out.solved:
		childData.Messages = append(childData.Messages, llmclient.Message{
			Role: llmclient.RoleUser,
			Content: []llmclient.ContentBlock{llmclient.TextRaw{
				Text: "No file changes or tool calls were found in that reply. Continue implementing the task, or call complete() once it is ready for validation.",
			}},
		})
	}

	child := tree.AddChild(parent, childData)
	return child, out.solved, nil
}

// buildSolution aggregates the trajectory's per-node files, later nodes
// overriding earlier ones, per spec.md §3's BaseData invariant.
func (a *Actor) buildSolution(leaf *searchtree.Node[*BaseData]) *Solution {
	files := make(map[string]string)
	for _, n := range leaf.Trajectory() {
		for path, content := range n.Data.Files {
			files[path] = content
		}
	}
	return &Solution{Node: leaf, Workspace: leaf.Data.Workspace, Files: files}
}
