package beam

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/forge/pkg/workspace"
)

// Validator runs one deterministic check against ws and reports whether it
// passed, along with combined command output for feedback.
type Validator interface {
	Name() string
	Run(ctx context.Context, ws *workspace.Workspace) (bool, string, error)
}

// ShellValidator runs Cmd inside ws and treats a zero exit as a pass. A
// validator requiring a database sets NeedsPostgres, in which case Run
// starts an ephemeral Postgres service for the duration of the command.
type ShellValidator struct {
	Label          string
	Cmd            []string
	Cwd            string
	NeedsPostgres  bool
	PostgresOpts   workspace.PostgresOptions
}

// NewShellValidator builds a ShellValidator running cmd in the workspace
// root.
func NewShellValidator(label string, cmd []string) *ShellValidator {
	return &ShellValidator{Label: label, Cmd: cmd}
}

// Name returns the validator's label.
func (v *ShellValidator) Name() string { return v.Label }

// Run shells out to v.Cmd, capturing combined stdout/stderr as feedback.
func (v *ShellValidator) Run(ctx context.Context, ws *workspace.Workspace) (bool, string, error) {
	var (
		res *workspace.ExecResult
		err error
	)
	if v.NeedsPostgres {
		res, err = ws.ExecWithPostgres(ctx, v.Cmd, v.Cwd, v.PostgresOpts)
	} else {
		res, err = ws.Exec(ctx, v.Cmd, v.Cwd)
	}
	if err != nil {
		return false, "", err
	}
	output := strings.TrimSpace(res.Stdout)
	return res.ExitCode == 0, output, nil
}

// Battery runs an ordered list of validators, stopping at the first
// failure. A run with no validators passes trivially.
type Battery struct {
	Validators []Validator
}

// NewBattery builds a Battery over the given validators, run in order.
func NewBattery(validators ...Validator) *Battery {
	return &Battery{Validators: validators}
}

// Run executes each validator in order and returns the first failure as a
// *ValidatorFailureError. A nil error means every validator passed.
func (b *Battery) Run(ctx context.Context, ws *workspace.Workspace) error {
	for _, v := range b.Validators {
		ok, output, err := v.Run(ctx, ws)
		if err != nil {
			return fmt.Errorf("beam: validator %q errored: %w", v.Name(), err)
		}
		if !ok {
			return &ValidatorFailureError{Validator: v.Name(), Output: output}
		}
	}
	return nil
}
