// Package models defines core data structures for documents, queries, and results.
package models

import "time"

// Document is a stored plain-text document. Documents are immutable once
// assigned an ID; updates replace the row and bump UpdatedAt.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentInput is the input for creating or replacing a document.
// When ID is empty, one is generated at ingest time.
type DocumentInput struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}
