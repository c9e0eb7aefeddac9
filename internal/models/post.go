package models

import "time"

// ForumPost is one post scraped from the watched thread. Posts are
// immutable once fetched; the bot never edits forum content.
type ForumPost struct {
	ID            string    `json:"id"`
	Author        string    `json:"author"`
	Text          string    `json:"text"`
	QuotedAuthors []string  `json:"quoted_authors,omitempty"`
	QuotedTexts   []string  `json:"quoted_texts,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Quotes reports whether the post quotes the given username.
func (p ForumPost) Quotes(username string) bool {
	if username == "" {
		return false
	}
	for _, a := range p.QuotedAuthors {
		if a == username {
			return true
		}
	}
	return false
}
