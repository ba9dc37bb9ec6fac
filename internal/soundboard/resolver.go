package soundboard

import (
	"context"
	"fmt"
	"strings"

	"soundbort/internal/storage"
)

// NotFoundError is returned when a name does not resolve exactly.
// Suggestions carries fuzzy matches for a "did you mean" reply; resolution
// itself never auto-selects a suggestion.
type NotFoundError struct {
	Name        string
	Suggestions []storage.SearchResult
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("sound %q does not exist", e.Name)
	}
	names := make([]string, len(e.Suggestions))
	for i, s := range e.Suggestions {
		names[i] = s.Name
	}
	return fmt.Sprintf("sound %q does not exist, did you mean: %s", e.Name, strings.Join(names, ", "))
}

func (e *NotFoundError) Unwrap() error { return storage.ErrNotFound }

// Resolver maps user-supplied names to canonical sounds, following alias
// indirection and producing suggestions on a miss.
type Resolver struct {
	store storage.Store
}

func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the name row for an exact case-insensitive match. On a
// miss it returns *NotFoundError carrying up to ten scored suggestions.
func (r *Resolver) Resolve(ctx context.Context, guildID, name string) (*storage.Name, error) {
	resolved, err := r.store.ResolveName(ctx, guildID, name)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		return resolved, nil
	}

	suggestions, err := r.store.Search(ctx, guildID, name, storage.DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	return nil, &NotFoundError{Name: name, Suggestions: suggestions}
}

// Rand picks a uniformly random primary name in the guild.
func (r *Resolver) Rand(ctx context.Context, guildID string) (*storage.Name, error) {
	return r.store.RandomName(ctx, guildID)
}

// Search ranks the guild's names against query, aliases included.
func (r *Resolver) Search(ctx context.Context, guildID, query string) ([]storage.SearchResult, error) {
	return r.store.Search(ctx, guildID, query, storage.DefaultSearchLimit)
}
