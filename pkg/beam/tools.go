package beam

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/workspace"
)

// toolResult pairs a tool call with the outcome to report back as a
// ToolUseResult, keeping source order across a single assistant turn.
type toolResult struct {
	call llmclient.ToolUse
	text string
	err  bool
}

// evalOutcome is the result of evaluating one assistant message against a
// workspace: feedback to append as the node's synthetic reply, the files
// written at this node only, and whether a complete() call passed the
// validator battery with no other errors.
type evalOutcome struct {
	feedback []llmclient.ContentBlock
	files    map[string]string
	solved   bool
}

// runTools applies file writes/diff edits then runs every ToolUse block in
// msg against ws, in source order, per step 3 of the generative loop.
// Permission/not-found/diff-mismatch errors are collected to feed back to
// the model; a ContainerEngineError is not locally recoverable and
// propagates so the caller can abandon the branch.
func runTools(ctx context.Context, ws *workspace.Workspace, msg *llmclient.Completion, battery *Battery, modified *bool) (*evalOutcome, error) {
	text := collectText(msg.Content)
	out := &evalOutcome{files: map[string]string{}}
	var writeErrs []string
	hasErr := false

	for _, fw := range ParseFileWrites(text) {
		if err := ws.WriteFile(ctx, fw.Path, fw.Content, false); err != nil {
			if isEngineFault(err) {
				return nil, err
			}
			writeErrs = append(writeErrs, err.Error())
			hasErr = true
			continue
		}
		out.files[fw.Path] = fw.Content
		*modified = true
	}

	for _, edit := range ParseDiffEdits(text) {
		current, err := ws.ReadFile(ctx, edit.Path)
		if err != nil {
			if isEngineFault(err) {
				return nil, err
			}
			writeErrs = append(writeErrs, err.Error())
			hasErr = true
			continue
		}
		updated, err := ApplyDiff(edit.Path, current, edit)
		if err != nil {
			writeErrs = append(writeErrs, err.Error())
			hasErr = true
			continue
		}
		if err := ws.WriteFile(ctx, edit.Path, updated, false); err != nil {
			if isEngineFault(err) {
				return nil, err
			}
			writeErrs = append(writeErrs, err.Error())
			hasErr = true
			continue
		}
		out.files[edit.Path] = updated
		*modified = true
	}

	var results []toolResult
	for _, block := range msg.Content {
		use, ok := block.(llmclient.ToolUse)
		if !ok {
			continue
		}

		switch use.Name {
		case "read_file":
			path, _ := use.Input["path"].(string)
			content, err := ws.ReadFile(ctx, path)
			if err != nil {
				if isEngineFault(err) {
					return nil, err
				}
				results = append(results, toolResult{call: use, text: err.Error(), err: true})
				hasErr = true
				continue
			}
			results = append(results, toolResult{call: use, text: content})

		case "delete_file":
			path, _ := use.Input["path"].(string)
			if err := ws.Remove(ctx, path); err != nil {
				if isEngineFault(err) {
					return nil, err
				}
				results = append(results, toolResult{call: use, text: err.Error(), err: true})
				hasErr = true
				continue
			}
			*modified = true
			results = append(results, toolResult{call: use, text: fmt.Sprintf("deleted %s", path)})

		case "complete":
			if !*modified {
				results = append(results, toolResult{call: use, text: "beam: complete called before any file was written", err: true})
				hasErr = true
				continue
			}
			if battery == nil {
				out.solved = true
				results = append(results, toolResult{call: use, text: "accepted"})
				continue
			}
			if err := battery.Run(ctx, ws); err != nil {
				results = append(results, toolResult{call: use, text: err.Error(), err: true})
				hasErr = true
				continue
			}
			out.solved = true
			results = append(results, toolResult{call: use, text: "all validators passed"})

		default:
			results = append(results, toolResult{call: use, text: fmt.Sprintf("unknown tool %q", use.Name), err: true})
			hasErr = true
		}
	}

	out.solved = out.solved && !hasErr

	blocks := make([]llmclient.ContentBlock, 0, len(results)+len(writeErrs))
	for _, e := range writeErrs {
		blocks = append(blocks, llmclient.TextRaw{Text: "file write error: " + e})
	}
	for _, r := range results {
		id := r.call.ID
		if id == "" {
			id = uuid.NewString()
		}
		blocks = append(blocks, llmclient.ToolUseResult{ToolUseID: id, Content: r.text, IsError: r.err})
	}
	out.feedback = blocks
	return out, nil
}

func isEngineFault(err error) bool {
	var ce *workspace.ContainerEngineError
	return errors.As(err, &ce)
}

func collectText(blocks []llmclient.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if t, ok := b.(llmclient.TextRaw); ok {
			out += t.Text + "\n"
		}
	}
	return out
}
