// Package tools wraps the external executables the pipeline drives: the aria2c
// download accelerator and a cabinet extraction tool (cabextract, or expand.exe
// on Windows).
package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner starts an external process and waits for it to exit.
// A non-zero exit status is returned as an error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct {
	// Stdout receives the child's standard output. Nil discards it.
	Stdout io.Writer
	// Stderr receives the child's standard error in addition to the error tail
	// captured for diagnostics. Nil only captures.
	Stderr io.Writer
}

// maxStderrTail bounds how much of a failing child's stderr ends up in the error.
const maxStderrTail = 512

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout

	var stderr bytes.Buffer
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		tool := filepath.Base(name)
		if tail := stderrTail(stderr.String()); tail != "" {
			return fmt.Errorf("%s: %w: %s", tool, err, tail)
		}
		return fmt.Errorf("%s: %w", tool, err)
	}
	return nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		s = "..." + s[len(s)-maxStderrTail:]
	}
	return strings.ReplaceAll(s, "\n", "; ")
}
