package types

import "time"

// ContentItem is one normalized piece of fetched content attributed to a person.
// (PersonID, ContentHash) is unique.
type ContentItem struct {
	ID          string         `json:"id"`
	PersonID    string         `json:"person_id"`
	Source      SourceKind     `json:"source"`
	URL         string         `json:"url,omitempty"`
	ContentHash string         `json:"content_hash"`
	Title       string         `json:"title,omitempty"`
	Body        string         `json:"body,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	FetchStatus string         `json:"fetch_status"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Fingerprint is a hashed term-frequency vector used for near-duplicate
	// detection. It is never serialized to API consumers.
	Fingerprint []float32 `json:"-"`

	RunID     string    `json:"run_id,omitempty"` // Run that last inserted or updated the row
	FetchedAt time.Time `json:"fetched_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Retracted reports whether the item was withdrawn by a relevance re-evaluation.
func (c *ContentItem) Retracted() bool {
	return c.FetchStatus == FetchStatusRetracted
}

// MetaString returns a string metadata value or "".
func (c *ContentItem) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[key].(string)
	return s
}
