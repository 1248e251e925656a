package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"winmanifests/internal/schema"
)

//go:embed schema/rules.schema.json
var rulesSchema []byte

// Rules controls which updates are processed and how catalog entries are matched.
type Rules struct {
	// WindowsVersionsToSkip maps a skipped version to the version whose catalog
	// searches also list it (for example 1909 shares updates with 1903). Skipped
	// versions are not processed, and their titles are excluded when selecting
	// for the containing version. An empty containing version only skips.
	WindowsVersionsToSkip map[string]string `yaml:"windowsVersionsToSkip" json:"windowsVersionsToSkip,omitempty"`

	// WindowsUpdateURLsToSkip lists update URLs (as given in the input list) to skip.
	WindowsUpdateURLsToSkip []string `yaml:"windowsUpdateUrlsToSkip" json:"windowsUpdateUrlsToSkip,omitempty"`

	// ExcludeTerms are whole-word, case-insensitive title terms that disqualify a
	// catalog entry.
	ExcludeTerms []string `yaml:"excludeTerms" json:"excludeTerms,omitempty"`

	Product      string `yaml:"product" json:"product"`
	Architecture string `yaml:"architecture" json:"architecture"`
}

func DefaultRules() Rules {
	return Rules{
		ExcludeTerms: []string{"server", "Dynamic Cumulative Update"},
		Product:      "Windows 10",
		Architecture: "x64",
	}
}

// LoadRules reads a YAML rules file. An empty path returns DefaultRules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	r, err := ParseRules(b)
	if err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRules decodes YAML rules on top of DefaultRules and validates the result.
func ParseRules(b []byte) (Rules, error) {
	r := DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("decode rules: %w", err)
	}

	doc, err := json.Marshal(r)
	if err != nil {
		return Rules{}, fmt.Errorf("encode rules: %w", err)
	}
	if err := schema.Validate("rules", rulesSchema, doc); err != nil {
		return Rules{}, fmt.Errorf("invalid rules: %w", err)
	}
	for skip, containing := range r.WindowsVersionsToSkip {
		if skip == containing {
			return Rules{}, fmt.Errorf("invalid rules: version %s cannot contain itself", skip)
		}
	}
	return r, nil
}

// WithSkips returns a copy of r extended with CLI skip rules.
func (r Rules) WithSkips(versions map[string]string, urls []string) Rules {
	out := r
	out.WindowsVersionsToSkip = maps.Clone(r.WindowsVersionsToSkip)
	if out.WindowsVersionsToSkip == nil && len(versions) > 0 {
		out.WindowsVersionsToSkip = make(map[string]string, len(versions))
	}
	maps.Copy(out.WindowsVersionsToSkip, versions)

	out.WindowsUpdateURLsToSkip = slices.Clone(r.WindowsUpdateURLsToSkip)
	for _, u := range urls {
		if !slices.Contains(out.WindowsUpdateURLsToSkip, u) {
			out.WindowsUpdateURLsToSkip = append(out.WindowsUpdateURLsToSkip, u)
		}
	}
	return out
}

// SkipVersions returns the versions that are not processed, sorted.
func (r Rules) SkipVersions() []string {
	out := make([]string, 0, len(r.WindowsVersionsToSkip))
	for v := range r.WindowsVersionsToSkip {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ContainedVersions returns the skipped versions listed under version, sorted.
func (r Rules) ContainedVersions(version string) []string {
	var out []string
	for skip, containing := range r.WindowsVersionsToSkip {
		if containing != "" && containing == version {
			out = append(out, skip)
		}
	}
	sort.Strings(out)
	return out
}
