package chart

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// DefaultSearchLimit is the number of results the pickers show.
const DefaultSearchLimit = 10

// Search returns up to limit titles matching query, best match first.
// Matching is case-insensitive. An empty query returns nothing.
func (c *Catalog) Search(query string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	titles := c.Titles()
	lower := make([]string, len(titles))
	for i, t := range titles {
		lower[i] = strings.ToLower(t)
	}

	matches := fuzzy.Find(query, lower)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = titles[m.Index]
	}
	return out
}
