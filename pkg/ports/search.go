package ports

import (
	"context"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// Searcher queries a web search backend.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error)
}

// SearchCache memoizes search results by key.
type SearchCache interface {
	// Get returns the cached results and true, or false on a miss.
	Get(ctx context.Context, key string) ([]domain.SearchResult, bool, error)

	// Set stores results under key.
	Set(ctx context.Context, key string, results []domain.SearchResult) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Trimmer bounds the conversation handed to a supervisor.
type Trimmer interface {
	Trim(messages []domain.Message) ([]domain.Message, error)
}
