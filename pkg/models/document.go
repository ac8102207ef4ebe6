package models

import (
	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
)

// Document is the generic JSON-shaped tree exchanged with document stores and
// returned from graph resolution.
type Document = map[string]any

// DocID returns the document's `_id`.
func DocID(doc Document) string {
	id, _ := doc["_id"].(string)
	return id
}

// DocRev returns the document's `_rev`.
func DocRev(doc Document) string {
	rev, _ := doc["_rev"].(string)
	return rev
}

// NewID returns a random document id.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// ToDocument converts any JSON-serialisable value into a Document.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes a Document into v.
func FromDocument(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
