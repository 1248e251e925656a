package updates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winmanifests/internal/github"
)

const sample = `{
  "20H2": [
    {"updateKb": "KB5003173", "updateUrl": "https://support.microsoft.com/help/5003173", "releaseDate": "2021-05-11"}
  ],
  "1909": [
    {"updateKb": "KB5003169", "updateUrl": "https://support.microsoft.com/help/5003169"},
    {"updateKb": "KB5001337", "updateUrl": "https://support.microsoft.com/help/5001337"}
  ],
  "2004": []
}`

func TestParse_PreservesDocumentOrder(t *testing.T) {
	l, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Len(t, l, 3)
	assert.Equal(t, "20H2", l[0].Name)
	assert.Equal(t, "1909", l[1].Name)
	assert.Equal(t, "2004", l[2].Name)

	assert.Equal(t, []Update{
		{KB: "KB5003169", URL: "https://support.microsoft.com/help/5003169"},
		{KB: "KB5001337", URL: "https://support.microsoft.com/help/5001337"},
	}, l[1].Updates)
	assert.Empty(t, l[2].Updates)
	assert.Equal(t, 3, l.Len())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not an object", doc: `[]`},
		{name: "missing url", doc: `{"2004": [{"updateKb": "KB1"}]}`},
		{name: "bad kb", doc: `{"2004": [{"updateKb": "5003173", "updateUrl": "u"}]}`},
		{name: "version not a list", doc: `{"2004": {"updateKb": "KB1", "updateUrl": "u"}}`},
		{name: "duplicate version", doc: `{"2004": [], "2004": []}`},
		{name: "malformed", doc: `{"2004": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updates.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestResult_Failed(t *testing.T) {
	assert.True(t, Result{Status: StatusError}.Failed())
	assert.False(t, Result{Status: StatusSkipped}.Failed())
	assert.False(t, Result{Status: StatusOK}.Failed())
}

type fakeGetter struct {
	body []byte
	err  error
	got  github.Location
}

func (f *fakeGetter) FetchFile(_ context.Context, loc github.Location) ([]byte, error) {
	f.got = loc
	return f.body, f.err
}

func TestLoadGitHub(t *testing.T) {
	loc := github.Location{Owner: "acme", Repo: "data", Path: "updates.json", Ref: "main"}
	g := &fakeGetter{body: []byte(sample)}

	l, err := LoadGitHub(context.Background(), g, loc)
	require.NoError(t, err)
	assert.Equal(t, loc, g.got)
	assert.Equal(t, "20H2", l[0].Name)

	_, err = LoadGitHub(context.Background(), &fakeGetter{err: errors.New("404")}, loc)
	assert.Error(t, err)

	_, err = LoadGitHub(context.Background(), &fakeGetter{body: []byte(`[]`)}, loc)
	assert.ErrorContains(t, err, "acme/data/updates.json@main")
}
