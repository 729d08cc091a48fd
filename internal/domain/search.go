package domain

// SearchResult is one citation returned by the search provider.
type SearchResult struct {
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
}

// Augmentation is the outcome of a web-search enrichment attempt. The
// zero value means "no augmentation"; a failed or empty search never
// produces an error, only an empty Augmentation.
type Augmentation struct {
	Digest  string         `json:"digest,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
}

// Empty reports whether there is nothing to inject.
func (a Augmentation) Empty() bool {
	return a.Digest == ""
}

// Apply merges the search digest into the user's message content. The
// digest is folded into the user turn textually, never added as a
// separate message role.
func (a Augmentation) Apply(query string) string {
	if a.Empty() {
		return query
	}
	return query + "\n\nWeb search context:\n" + a.Digest
}
