package updates

import (
	"context"
	"fmt"

	"winmanifests/internal/github"
)

// FileGetter reads a file from a GitHub repository.
type FileGetter interface {
	FetchFile(ctx context.Context, loc github.Location) ([]byte, error)
}

// LoadGitHub reads and parses the list stored at loc.
func LoadGitHub(ctx context.Context, g FileGetter, loc github.Location) (List, error) {
	b, err := g.FetchFile(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("read update list: %w", err)
	}
	l, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return l, nil
}
