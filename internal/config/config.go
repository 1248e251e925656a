package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"winmanifests/internal/catalog"
	"winmanifests/internal/tools"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect fetch
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/fetch.go
	// - flag name constants in internal/flags/flags.go
	Input     Input
	Selection Selection
	Catalog   Catalog
	Tools     Tools
	Output    Output
	Runtime   Runtime
}

type Input struct {
	// OutDir is the root of the output tree (see --out). Manifests land in
	// <OutDir>/manifests/<version>/<KB>.
	OutDir string

	// Updates is the path of the update list (see --updates).
	// Defaults to <OutDir>/updates.json.
	Updates string

	// UpdatesGitHub reads the update list from a GitHub repository instead
	// (see --updates-github). Format: OWNER/REPO/PATH[@REF].
	UpdatesGitHub string
}

type Selection struct {
	// RulesFile is a YAML rules file (see --rules-file). Empty means built-in defaults.
	RulesFile string

	// SkipVersions adds skip rules from the CLI (see --skip-version).
	// Entries are VERSION or VERSION=CONTAINING_VERSION (repeatable; comma-separated accepted).
	SkipVersions []string

	// SkipURLs adds update URLs to skip (see --skip-url).
	SkipURLs []string
}

type Catalog struct {
	// BaseURL is the Microsoft Update Catalog root (see --catalog-url).
	BaseURL string

	// Rate limits catalog requests per second (see --rate). 0 means unlimited.
	Rate float64
}

type Tools struct {
	// Aria2c is the downloader executable (see --aria2c).
	Aria2c string

	// CabTool is the cabinet extraction executable, cabextract or expand (see --cab-tool).
	CabTool string

	// Connections is the number of connections per download (see --connections).
	// Must be between 1 and 16.
	Connections int
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by update status (see --console-filter-status).
	// Allowed values: OK, ERROR, SKIPPED.
	ConsoleFilterStatus []string

	// Report writes a Markdown report to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out-file).
	Out string

	// OutFormat selects the format for --out-file (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// MetricsFile writes Prometheus metrics in text format after the run (see --metrics-file).
	MetricsFile string
}

type Runtime struct {
	// Timeout bounds the whole run (see --timeout). 0 means no limit.
	Timeout time.Duration

	// FailFast stops at the first failed update (see --fail-fast).
	FailFast bool

	// ConcurrentExtraction runs extraction in the background while the next update
	// downloads (see --concurrent-extraction).
	ConcurrentExtraction bool

	// MaxExtractions bounds background extractions (see --max-extractions). 0 means unbounded.
	MaxExtractions int

	// DryRun selects and resolves every update without downloading (see --dry-run).
	DryRun bool

	// Verbose logs catalog requests and forwards tool output to stderr.
	Verbose bool
}

func New() *Config {
	return &Config{
		Input: Input{
			OutDir: ".",
		},
		Catalog: Catalog{
			BaseURL: catalog.DefaultBaseURL,
			Rate:    catalog.DefaultRate,
		},
		Tools: Tools{
			Connections: tools.DefaultConnections,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Selection.SkipVersions = splitCommaList(c.Selection.SkipVersions)
	c.Selection.SkipURLs = splitCommaList(c.Selection.SkipURLs)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)

	// Input validation
	c.Input.OutDir = strings.TrimSpace(c.Input.OutDir)
	if c.Input.OutDir == "" {
		c.Input.OutDir = "."
	}
	c.Input.Updates = strings.TrimSpace(c.Input.Updates)
	c.Input.UpdatesGitHub = strings.TrimSpace(c.Input.UpdatesGitHub)
	if c.Input.Updates != "" && c.Input.UpdatesGitHub != "" {
		return errors.New("--updates and --updates-github are mutually exclusive")
	}
	if c.Input.Updates == "" && c.Input.UpdatesGitHub == "" {
		c.Input.Updates = filepath.Join(c.Input.OutDir, "updates.json")
	}

	if _, err := ParseSkipVersions(c.Selection.SkipVersions); err != nil {
		return err
	}

	// Catalog validation
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --catalog-url %q: expected an absolute http(s) URL", c.Catalog.BaseURL)
	}
	if c.Catalog.Rate < 0 {
		return errors.New("--rate must be >= 0")
	}

	// Tools validation
	if c.Tools.Connections < 1 || c.Tools.Connections > tools.MaxConnections {
		return fmt.Errorf("--connections must be between 1 and %d", tools.MaxConnections)
	}
	c.Tools.Aria2c = strings.TrimSpace(c.Tools.Aria2c)
	c.Tools.CabTool = strings.TrimSpace(c.Tools.CabTool)

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, s := range c.Output.ConsoleFilterStatus {
		v := strings.ToUpper(strings.TrimSpace(s))
		if v != "OK" && v != "ERROR" && v != "SKIPPED" {
			return fmt.Errorf("unsupported --console-filter-status value: %s (must be one of: OK, ERROR, SKIPPED)", s)
		}
		c.Output.ConsoleFilterStatus[i] = v
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v == "" {
			return errors.New("--emit must be one of: json, ndjson")
		}
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else {
			if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
				return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
			}
		}
	}

	// Runtime validation
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	if c.Runtime.MaxExtractions < 0 {
		return errors.New("--max-extractions must be >= 0")
	}
	if c.Runtime.MaxExtractions > 0 && !c.Runtime.ConcurrentExtraction {
		return errors.New("--max-extractions requires --concurrent-extraction")
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseSkipVersions parses values of the form "VERSION" or "VERSION=CONTAINING".
//
// A bare VERSION is skipped without excluding its titles from any other version.
// Entries may be provided via repeated flags and/or comma-delimited lists.
func ParseSkipVersions(values []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, raw := range splitCommaList(values) {
		version, containing, _ := strings.Cut(raw, "=")
		version = strings.TrimSpace(version)
		containing = strings.TrimSpace(containing)
		if version == "" {
			return nil, fmt.Errorf("invalid --skip-version entry %q: expected VERSION or VERSION=CONTAINING_VERSION", raw)
		}
		if containing == version {
			return nil, fmt.Errorf("invalid --skip-version entry %q: a version cannot contain itself", raw)
		}
		out[version] = containing
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
