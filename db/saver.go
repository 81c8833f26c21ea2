// ABOUTME: persist.Saver adapter over the local SQLite board store
// ABOUTME: Lets autosave target the local database instead of an HTTP endpoint
package db

import (
	"context"
	"database/sql"

	"github.com/harperreed/mural/models"
	"github.com/harperreed/mural/persist"
)

// Saver adapts the boards table to the durable persistence contract.
type Saver struct {
	db *sql.DB
}

func NewSaver(db *sql.DB) *Saver {
	return &Saver{db: db}
}

func (s *Saver) Save(ctx context.Context, doc *models.Document) error {
	if err := SaveBoard(s.db, doc); err != nil {
		return &persist.SaveError{BoardID: doc.BoardID, Err: err}
	}
	return nil
}

func (s *Saver) Load(ctx context.Context, boardID string) (*models.Document, error) {
	doc, err := GetBoard(s.db, boardID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, persist.ErrNotFound
	}
	return doc, nil
}
