package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Input.Updates != filepath.Join(".", "updates.json") {
		t.Fatalf("expected updates path to default under out dir, got %q", cfg.Input.Updates)
	}
	if cfg.Tools.Connections != 4 {
		t.Fatalf("expected 4 connections, got %d", cfg.Tools.Connections)
	}
}

func TestValidate_UpdatesDefaultFollowsOutDir(t *testing.T) {
	cfg := New()
	cfg.Input.OutDir = "  /data/out "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Input.Updates != filepath.Join("/data/out", "updates.json") {
		t.Fatalf("unexpected updates path %q", cfg.Input.Updates)
	}
}

func TestValidate_RejectsBothInputSources(t *testing.T) {
	cfg := New()
	cfg.Input.Updates = "updates.json"
	cfg.Input.UpdatesGitHub = "acme/data/updates.json"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_GitHubSourceLeavesUpdatesEmpty(t *testing.T) {
	cfg := New()
	cfg.Input.UpdatesGitHub = "acme/data/updates.json"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Input.Updates != "" {
		t.Fatalf("expected no local updates path, got %q", cfg.Input.Updates)
	}
}

func TestValidate_NormalizesCommaDelimitedSkips(t *testing.T) {
	cfg := New()
	cfg.Selection.SkipVersions = []string{"1909=1903, 20H2=2004", "21H1", ",,"}
	cfg.Selection.SkipURLs = []string{"https://a, https://b"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"1909=1903", "20H2=2004", "21H1"}
	if !reflect.DeepEqual(cfg.Selection.SkipVersions, want) {
		t.Fatalf("SkipVersions normalized mismatch: got %v want %v", cfg.Selection.SkipVersions, want)
	}
	if !reflect.DeepEqual(cfg.Selection.SkipURLs, []string{"https://a", "https://b"}) {
		t.Fatalf("SkipURLs normalized mismatch: got %v", cfg.Selection.SkipURLs)
	}
}

func TestParseSkipVersions(t *testing.T) {
	got, err := ParseSkipVersions([]string{"1909=1903, 20H2 = 2004", "21H1"})
	if err != nil {
		t.Fatalf("ParseSkipVersions returned error: %v", err)
	}
	want := map[string]string{"1909": "1903", "20H2": "2004", "21H1": ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseSkipVersions_ErrorsOnInvalidSyntax(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{name: "empty_version", values: []string{"=1903"}},
		{name: "self_containing", values: []string{"1903=1903"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSkipVersions(tt.values); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "empty", consoleFormat: ""},
		{name: "spaces", consoleFormat: "   "},
		{name: "unknown", consoleFormat: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "ndjson", " NDJSON "} {
		t.Run(format, func(t *testing.T) {
			cfg := New()
			cfg.Output.ConsoleFormat = format
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_NormalizesConsoleFilterStatus(t *testing.T) {
	cfg := New()
	cfg.Output.ConsoleFilterStatus = []string{"error, skipped"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !reflect.DeepEqual(cfg.Output.ConsoleFilterStatus, []string{"ERROR", "SKIPPED"}) {
		t.Fatalf("unexpected filter %v", cfg.Output.ConsoleFilterStatus)
	}

	cfg = New()
	cfg.Output.ConsoleFilterStatus = []string{"PASS"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	tests := []struct {
		name string
		emit []string
	}{
		{name: "empty", emit: []string{""}},
		{name: "unknown", emit: []string{"yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Output.Emit = tt.emit
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_InfersOutFormat(t *testing.T) {
	tests := []struct {
		out     string
		format  string
		want    string
		wantErr bool
	}{
		{out: "results.json", want: "json"},
		{out: "results.NDJSON", want: "ndjson"},
		{out: "results", wantErr: true},
		{out: "results.txt", wantErr: true},
		{out: "results.txt", format: "ndjson", want: "ndjson"},
		{out: "results.json", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.out+"/"+tt.format, func(t *testing.T) {
			cfg := New()
			cfg.Output.Out = tt.out
			cfg.Output.OutFormat = tt.format
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cfg.Output.OutFormat != tt.want {
				t.Fatalf("expected out format %q, got %q", tt.want, cfg.Output.OutFormat)
			}
		})
	}
}

func TestValidate_RejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{
			name: "zero_connections",
			mutateCfg: func(cfg *Config) {
				cfg.Tools.Connections = 0
			},
		},
		{
			name: "too_many_connections",
			mutateCfg: func(cfg *Config) {
				cfg.Tools.Connections = 17
			},
		},
		{
			name: "negative_rate",
			mutateCfg: func(cfg *Config) {
				cfg.Catalog.Rate = -1
			},
		},
		{
			name: "non_http_catalog",
			mutateCfg: func(cfg *Config) {
				cfg.Catalog.BaseURL = "file:///tmp/catalog"
			},
		},
		{
			name: "negative_timeout",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.Timeout = -1
			},
		},
		{
			name: "negative_max_extractions",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.ConcurrentExtraction = true
				cfg.Runtime.MaxExtractions = -1
			},
		},
		{
			name: "max_extractions_without_concurrency",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.MaxExtractions = 2
			},
		},
		{
			name: "bad_skip_version",
			mutateCfg: func(cfg *Config) {
				cfg.Selection.SkipVersions = []string{"=2004"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_TrimsCatalogURL(t *testing.T) {
	cfg := New()
	cfg.Catalog.BaseURL = " http://127.0.0.1:8080/ "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Catalog.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected base url %q", cfg.Catalog.BaseURL)
	}
}
