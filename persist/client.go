// ABOUTME: HTTP client for the durable board persistence endpoint
// ABOUTME: Full-document PUT/GET keyed by board id; non-2xx is a SaveError
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harperreed/mural/models"
)

// ErrNotFound is returned by Load for a board the endpoint has never
// seen.
var ErrNotFound = errors.New("persist: board not found")

// SaveError reports a failed durable save. The autosave scheduler
// never surfaces it to the user; the document stays "unsaved" and the
// next tick retries.
type SaveError struct {
	BoardID string
	Status  int
	Err     error
}

func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("save of board %s failed: %v", e.BoardID, e.Err)
	}
	return fmt.Sprintf("save of board %s failed: status %d", e.BoardID, e.Status)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Saver is the durable persistence contract: a full document snapshot
// in, the same shape (or not-found) out.
type Saver interface {
	Save(ctx context.Context, doc *models.Document) error
	Load(ctx context.Context, boardID string) (*models.Document, error)
}

// Client talks to the board persistence endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the endpoint at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) boardURL(boardID string) string {
	return c.baseURL + "/api/boards/" + boardID
}

// Save persists a full document snapshot.
func (c *Client) Save(ctx context.Context, doc *models.Document) error {
	payload, err := doc.Marshal()
	if err != nil {
		return &SaveError{BoardID: doc.BoardID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.boardURL(doc.BoardID), bytes.NewReader(payload))
	if err != nil {
		return &SaveError{BoardID: doc.BoardID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &SaveError{BoardID: doc.BoardID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SaveError{BoardID: doc.BoardID, Status: resp.StatusCode}
	}
	return nil
}

// Load fetches the last saved snapshot of a board.
func (c *Client) Load(ctx context.Context, boardID string) (*models.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.boardURL(boardID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load of board %s failed: status %d", boardID, resp.StatusCode)
	}

	var doc models.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode board %s: %w", boardID, err)
	}
	return &doc, nil
}
