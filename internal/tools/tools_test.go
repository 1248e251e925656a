package tools

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	name string
	args []string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.name = name
	r.args = append([]string(nil), args...)
	return r.err
}

func TestAria2c_Args(t *testing.T) {
	rr := &recordingRunner{}
	a := Aria2c{Path: "/usr/bin/aria2c", Runner: rr}

	err := a.Download(context.Background(), "https://example/u/pkg.msu", "/out/2004/KB1", "pkg.msu")
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/aria2c", rr.name)
	assert.Equal(t, []string{
		"-x4",
		"--allow-overwrite=true",
		"--auto-file-renaming=false",
		"-d", "/out/2004/KB1",
		"-o", "pkg.msu",
		"https://example/u/pkg.msu",
	}, rr.args)
}

func TestAria2c_CustomConnections(t *testing.T) {
	a := Aria2c{Connections: 8}
	assert.Equal(t, "-x8", a.Args("u", "d", "n")[0])
}

func TestAria2c_NilRunner(t *testing.T) {
	err := Aria2c{}.Download(context.Background(), "u", "d", "n")
	assert.Error(t, err)
}

func TestCabTools_Args(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantName string
		wantArgs []string
	}{
		{
			name:     "cabextract",
			path:     "cabextract",
			wantName: "cabextract",
			wantArgs: []string{"-F", "*.cab", "-d", "/dst", "/src/pkg.msu"},
		},
		{
			name:     "expand",
			path:     `C:\Windows\System32\expand.exe`,
			wantName: `C:\Windows\System32\expand.exe`,
			wantArgs: []string{"-f:*.cab", "/src/pkg.msu", "/dst"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := &recordingRunner{}
			tool := NewCabTool(tt.path, rr)
			require.NoError(t, tool.Extract(context.Background(), "*.cab", "/src/pkg.msu", "/dst"))
			assert.Equal(t, tt.wantName, rr.name)
			assert.Equal(t, tt.wantArgs, rr.args)
		})
	}
}

func TestNewCabTool_DefaultsByPlatform(t *testing.T) {
	tool := NewCabTool("", &recordingRunner{})
	if runtime.GOOS == "windows" {
		assert.IsType(t, Expand{}, tool)
	} else {
		assert.IsType(t, Cabextract{}, tool)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T", err)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.True(t, strings.HasPrefix(err.Error(), "sh: "), err.Error())
	assert.Contains(t, err.Error(), "boom")
}

func TestExecRunner_Success(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var out strings.Builder
	err := ExecRunner{Stdout: &out}.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}
