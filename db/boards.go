// ABOUTME: Board snapshot database operations
// ABOUTME: Handles upsert, load, list and delete of full board documents
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/mural/models"
)

// BoardRow is the list view of a stored board: metadata only, no
// payload.
type BoardRow struct {
	ID          string
	Name        string
	Description string
	ObjectCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func SaveBoard(db *sql.DB, doc *models.Document) error {
	payload, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal board %s: %w", doc.BoardID, err)
	}

	now := time.Now()
	_, err = db.Exec(`
		INSERT INTO boards (id, name, description, payload, object_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			payload = excluded.payload,
			object_count = excluded.object_count,
			updated_at = excluded.updated_at
	`, doc.BoardID, doc.Name, doc.Description, string(payload), len(doc.Objects), now, now)

	return err
}

func GetBoard(db *sql.DB, id string) (*models.Document, error) {
	var payload string
	err := db.QueryRow(`
		SELECT payload FROM boards WHERE id = ?
	`, id).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := models.UnmarshalDocument([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode board %s: %w", id, err)
	}
	return doc, nil
}

func ListBoards(db *sql.DB, limit int) ([]BoardRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, name, description, object_count, created_at, updated_at
		FROM boards
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boards []BoardRow
	for rows.Next() {
		var b BoardRow
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.ObjectCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}

	return boards, rows.Err()
}

func DeleteBoard(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("board not found: %s", id)
	}
	return nil
}
