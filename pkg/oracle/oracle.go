// Package oracle answers the one question the bisection driver cannot
// answer itself: does the project work at the current cutoff.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	survey "github.com/AlecAivazis/survey/v2"
)

// Oracle reports whether the project works in its current, just-reinstalled
// state.
type Oracle interface {
	Works(ctx context.Context) (bool, error)
}

// ShellOracle runs Command through the shell in Dir; exit code 0 means the
// project works.
type ShellOracle struct {
	Command string
	Dir     string
}

// Works implements Oracle.
func (o *ShellOracle) Works(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", o.Command)
	cmd.Dir = o.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("run oracle command %q: %w", o.Command, err)
}

// PromptOracle asks the user interactively after each probe.
type PromptOracle struct {
	Message string
}

// Works implements Oracle.
func (o *PromptOracle) Works(_ context.Context) (bool, error) {
	msg := o.Message
	if msg == "" {
		msg = "Does the project work at this point in time?"
	}
	works := false
	prompt := &survey.Confirm{Message: msg}
	if err := survey.AskOne(prompt, &works); err != nil {
		return false, fmt.Errorf("prompt for oracle answer: %w", err)
	}
	return works, nil
}
