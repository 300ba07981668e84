package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrEmptyCommand is returned when a command line is blank.
var ErrEmptyCommand = errors.New("empty command")

// Command is an external shell command run by the pipeline, such as the
// project's own build step or a packaging hook.
type Command struct {
	// Line is the command line passed to the platform shell.
	Line string

	// Dir is the working directory.
	Dir string

	// Env holds extra KEY=VALUE pairs on top of the process environment.
	Env []string
}

// Run executes the command, writing combined output to out. Cancelling
// ctx kills the command.
func (c Command) Run(ctx context.Context, out io.Writer) error {
	line := strings.TrimSpace(c.Line)
	if line == "" {
		return ErrEmptyCommand
	}

	name, args := shell(line)

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("running %q: %w", line, err)
	}

	return nil
}

func shell(line string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", line}
	}

	return "sh", []string{"-c", line}
}

// TargetEnv returns the environment describing a build to external
// commands. The names stay clear of the configuration keys read from
// EXTDEV_* variables.
func TargetEnv(vendor, outputPath string, mode Mode) []string {
	return []string{
		"EXTDEV_TARGET_BROWSER=" + vendor,
		"EXTDEV_TARGET_OUTPUT=" + outputPath,
		"EXTDEV_TARGET_MODE=" + mode.String(),
	}
}
