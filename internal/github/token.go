package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

type TokenSource string

const (
	TokenSourceEnvGitHub TokenSource = "env:GITHUB_TOKEN"
	TokenSourceEnvGH     TokenSource = "env:GH_TOKEN"
	TokenSourceGitHubCLI TokenSource = "gh"
)

// tokenEnv lists the environment variables consulted, in order.
var tokenEnv = []struct {
	name   string
	source TokenSource
}{
	{"GITHUB_TOKEN", TokenSourceEnvGitHub},
	{"GH_TOKEN", TokenSourceEnvGH},
}

// ResolveToken finds a GitHub access token for reading the update list.
//
// Precedence:
//  1. GITHUB_TOKEN env var
//  2. GH_TOKEN env var
//  3. GitHub CLI: `gh auth token -h github.com`
//
// An empty token with no error means anonymous access. The token is never printed.
func ResolveToken(ctx context.Context) (token string, source TokenSource, err error) {
	for _, e := range tokenEnv {
		if v := strings.TrimSpace(os.Getenv(e.name)); v != "" {
			return v, e.source, nil
		}
	}

	tok, ok, err := tokenFromGitHubCLI(ctx)
	if err != nil {
		return "", "", err
	}
	if ok {
		return tok, TokenSourceGitHubCLI, nil
	}
	return "", "", nil
}

func tokenFromGitHubCLI(ctx context.Context) (token string, ok bool, err error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", false, nil
	}

	// A broken gh config or credential helper must not hang the run.
	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "gh", "auth", "token", "-h", "github.com")
	env := make([]string, 0, len(os.Environ())+1)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, "GH_PAGER=") {
			env = append(env, entry)
		}
	}
	cmd.Env = append(env, "GH_PAGER=cat")

	out, runErr := cmd.Output()
	if runErr != nil {
		if cmdCtx.Err() != nil {
			return "", false, cmdCtx.Err()
		}
		// Not logged in, or gh failed: anonymous access. gh output is not surfaced.
		return "", false, nil
	}

	tok := strings.TrimSpace(string(out))
	if tok == "" {
		return "", false, nil
	}
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", false, errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, true, nil
}
