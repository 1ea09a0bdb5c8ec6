package workspace

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff starts from the workspace's base directory, initialises a scratch
// git repository with a synthetic base commit, overlays the container's
// current /app contents on top, stages everything, and returns
// `git diff --cached` against the base commit. When git is
// unavailable it falls back to a line-oriented diff computed per file with
// diffmatchpatch.
func (w *Workspace) Diff(ctx context.Context) (string, error) {
	tmp, err := os.MkdirTemp("", "forge-workspace-diff-*")
	if err != nil {
		return "", fmt.Errorf("workspace: diff: create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if w.baseDir != "" {
		if err := copyDirLocal(w.baseDir, tmp); err != nil {
			return "", fmt.Errorf("workspace: diff: seed base dir: %w", err)
		}
	}

	if !gitAvailable() {
		return w.diffFallback(ctx, tmp)
	}

	if _, err := runGit(tmp, "init", "-q"); err != nil {
		return w.diffFallback(ctx, tmp)
	}
	_, _ = runGit(tmp, "add", "-A")
	_, _ = runGit(tmp, "-c", "user.email=workspace@forge.local", "-c", "user.name=workspace",
		"commit", "-q", "--allow-empty", "-m", "base")

	if err := w.extractContainerDir(ctx, "/app", tmp); err != nil {
		return "", err
	}
	_, _ = runGit(tmp, "add", "-A")

	out, err := runGit(tmp, "diff", "--cached")
	if err != nil {
		return "", fmt.Errorf("workspace: diff: git diff: %w", err)
	}
	return out, nil
}

// extractContainerDir copies src (a container path) onto dst (a host
// directory), overwriting any overlapping files.
func (w *Workspace) extractContainerDir(ctx context.Context, src, dst string) error {
	cli, err := w.dockerClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	reader, _, err := cli.CopyFromContainer(ctx, w.container.GetContainerID(), src)
	if err != nil {
		return &ContainerEngineError{Op: "diff:copy_from_container", Err: err}
	}
	defer reader.Close()

	return untarInto(reader, dst, filepath.Base(src))
}

// diffFallback computes a best-effort unified diff without git, comparing
// the seeded base tree on disk to the container's current /app tree,
// file-by-file, using diffmatchpatch's line-mode diff.
func (w *Workspace) diffFallback(ctx context.Context, baseTmp string) (string, error) {
	liveTmp, err := os.MkdirTemp("", "forge-workspace-diff-live-*")
	if err != nil {
		return "", fmt.Errorf("workspace: diff fallback: create scratch dir: %w", err)
	}
	defer os.RemoveAll(liveTmp)

	if err := w.extractContainerDir(ctx, "/app", liveTmp); err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	var out string

	seen := map[string]bool{}
	_ = filepath.Walk(liveTmp, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(liveTmp, p)
		seen[rel] = true

		after, _ := os.ReadFile(p)
		before, _ := os.ReadFile(filepath.Join(baseTmp, rel))
		if string(before) == string(after) {
			return nil
		}

		out += renderFileDiff(dmp, rel, string(before), string(after))
		return nil
	})

	_ = filepath.Walk(baseTmp, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(baseTmp, p)
		if seen[rel] {
			return nil
		}
		before, _ := os.ReadFile(p)
		out += renderFileDiff(dmp, rel, string(before), "")
		return nil
	})

	return out, nil
}

func renderFileDiff(dmp *diffmatchpatch.DiffMatchPatch, path, before, after string) string {
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	dmp.DiffCleanupSemantic(diffs)

	header := fmt.Sprintf("diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n", path, path, path, path)
	var body string
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			body += addPrefix("+", d.Text)
		case diffmatchpatch.DiffDelete:
			body += addPrefix("-", d.Text)
		}
	}
	return header + body
}

func addPrefix(prefix, text string) string {
	var out string
	for _, line := range splitLinesKeepEmpty(text) {
		out += prefix + line + "\n"
	}
	return out
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func gitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// untarInto extracts a tar stream (as produced by Docker's CopyFromContainer,
// rooted at baseName) into dst.
func untarInto(r io.Reader, dst, baseName string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("workspace: untar: %w", err)
		}

		rel := hdr.Name
		if rel == baseName || rel == baseName+"/" {
			continue
		}
		rel = trimTarRoot(rel, baseName)
		target := filepath.Join(dst, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

func trimTarRoot(name, baseName string) string {
	prefix := baseName + "/"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return name
}
