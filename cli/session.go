// ABOUTME: Board session CLI command
// ABOUTME: Wires store, sync bridge, presence, history and autosave for one board
package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/mural/autosave"
	"github.com/harperreed/mural/backend"
	"github.com/harperreed/mural/board"
	"github.com/harperreed/mural/db"
	"github.com/harperreed/mural/history"
	"github.com/harperreed/mural/models"
	"github.com/harperreed/mural/persist"
	"github.com/harperreed/mural/presence"
	"github.com/harperreed/mural/resources"
	muralsync "github.com/harperreed/mural/sync"
	"github.com/harperreed/mural/tui"
)

// Session bundles everything a running board session needs. The TUI
// and the signal loop both drive it.
type Session struct {
	Store     *board.Store
	Cache     *resources.Cache
	Bridge    *muralsync.Bridge
	Channel   *presence.Channel
	History   *history.Manager
	Scheduler *autosave.Scheduler

	session  backend.Session
	unlisten func()
}

// Undo restores the previous checkpoint, replacing the live objects
// wholesale and clearing the selection.
func (s *Session) Undo(ctx context.Context) error {
	objects, err := s.History.Undo(ctx, s.Cache)
	if err != nil {
		return err
	}
	if objects == nil {
		return nil
	}
	s.Store.ReplaceObjects(objects)
	s.Store.ClearSelection()
	return nil
}

// Redo re-applies the next checkpoint, replacing the live objects
// wholesale and clearing the selection.
func (s *Session) Redo(ctx context.Context) error {
	objects, err := s.History.Redo(ctx, s.Cache)
	if err != nil {
		return err
	}
	if objects == nil {
		return nil
	}
	s.Store.ReplaceObjects(objects)
	s.Store.ClearSelection()
	return nil
}

// Close tears the session down in reverse wiring order.
func (s *Session) Close() {
	if s.unlisten != nil {
		s.unlisten()
	}
	s.Bridge.Stop()
	if err := s.session.Close(); err != nil {
		log.Printf("warning: session close failed: %v", err)
	}
}

// SessionCommand joins a board and keeps it synced until interrupted.
func SessionCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	boardID := fs.String("board", "", "Board ID to join (default: create a new board)")
	backendName := fs.String("backend", "charm", "Replication backend: charm, ws, or memory")
	wsURL := fs.String("ws-url", "", "WebSocket backend URL (required with --backend ws)")
	saveURL := fs.String("save-url", "", "Durable persistence endpoint (default: local database)")
	interval := fs.Duration("interval", 0, "Autosave interval (default: from settings)")
	noTUI := fs.Bool("no-tui", false, "Run headless without the status view")
	_ = fs.Parse(args)

	if *boardID == "" {
		*boardID = uuid.New().String()
		log.Printf("Created new board: %s", *boardID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := openBackend(ctx, *backendName, *wsURL, *boardID)
	if err != nil {
		return err
	}

	var saver persist.Saver
	if *saveURL != "" {
		saver = persist.NewClient(*saveURL)
	} else {
		saver = db.NewSaver(database)
	}

	s, err := buildSession(ctx, sess, saver, *boardID, *interval)
	if err != nil {
		_ = sess.Close()
		return err
	}
	defer s.Close()

	go s.Scheduler.Run(ctx)

	if *noTUI {
		return waitForInterrupt(ctx, cancel, s)
	}

	err = tui.Run(tui.Options{
		Store:   s.Store,
		Channel: s.Channel,
		History: s.History,
		Undo:    func() error { return s.Undo(ctx) },
		Redo:    func() error { return s.Redo(ctx) },
	})
	cancel()
	finalFlush(s)
	return err
}

// buildSession wires the board pipeline on top of an open backend
// session.
func buildSession(ctx context.Context, sess backend.Session, saver persist.Saver, boardID string, interval time.Duration) (*Session, error) {
	store := board.NewStore(boardID)

	// Restore the last durable snapshot before joining replication,
	// so a lone client does not start from an empty board.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	doc, err := saver.Load(loadCtx, boardID)
	loadCancel()
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		return nil, fmt.Errorf("failed to load board %s: %w", boardID, err)
	}

	cache := newCache()

	if doc != nil {
		loadDocument(ctx, store, cache, doc)
	}

	settings, err := board.LoadSettings()
	if err != nil {
		log.Printf("warning: failed to load settings, using defaults: %v", err)
		settings = board.DefaultSettings()
	}
	if interval <= 0 {
		interval = settings.AutosaveInterval
	}

	channel := presence.NewChannel(sess.Presence(), sess.ConnID())
	sched := autosave.New(store, saver, func(ctx context.Context) bool {
		return channel.IsLeader(ctx)
	}, interval)
	if doc != nil {
		sched.MarkSaved(doc)
	}

	bridge := muralsync.NewBridge(store, sess.Shared(), cache)
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start sync bridge: %w", err)
	}

	// The baseline snapshot is taken after the bridge applies any
	// existing replicated state, so a client joining an active board
	// cannot undo back to its stale pre-join view.
	hist := history.NewManager(history.DefaultMaxDepth)
	if _, err := hist.Push(store.Objects()); err != nil {
		log.Printf("warning: failed to record initial history: %v", err)
	}

	unlisten := store.Listen(func(change board.Change) {
		switch change.Kind {
		case board.ChangeObjects:
			if change.Checkpoint {
				if _, err := hist.Push(store.Objects()); err != nil {
					log.Printf("warning: history push failed: %v", err)
				}
			}
		case board.ChangeSelection:
			if err := channel.PublishSelection(ctx, store.Selection()); err != nil {
				log.Printf("warning: selection publish failed: %v", err)
			}
		}
	})

	return &Session{
		Store:     store,
		Cache:     cache,
		Bridge:    bridge,
		Channel:   channel,
		History:   hist,
		Scheduler: sched,
		session:   sess,
		unlisten:  unlisten,
	}, nil
}

func openBackend(ctx context.Context, name, wsURL, boardID string) (backend.Session, error) {
	switch name {
	case "charm":
		cfg, err := backend.LoadCharmConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load charm config: %w", err)
		}
		return backend.DialCharm(cfg, boardID)
	case "ws":
		if wsURL == "" {
			return nil, fmt.Errorf("--ws-url is required with --backend ws")
		}
		return backend.DialWS(ctx, wsURL, boardID)
	case "memory":
		// Single-client backend, useful for offline work and testing.
		return backend.NewMemoryHub().Connect(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
}

func newCache() *resources.Cache {
	disk, err := resources.OpenDiskCache(resources.DefaultDiskCachePath())
	if err != nil {
		// The session still works without the disk cache; images are
		// just re-fetched on restart.
		log.Printf("warning: disk cache unavailable: %v", err)
		return resources.NewCache()
	}
	return resources.NewCache(resources.WithDiskCache(disk))
}

// loadDocument restores a durable snapshot and rehydrates image
// resources. A failed image load keeps the object; it renders as a
// placeholder until a later sync resolves it.
func loadDocument(ctx context.Context, store *board.Store, cache *resources.Cache, doc *models.Document) {
	store.LoadDocument(doc)

	for _, obj := range store.Objects() {
		if !obj.SourceType.NeedsResource() || obj.RemoteURL == "" {
			continue
		}
		img, err := cache.Load(ctx, obj.ID, obj.RemoteURL)
		if err != nil {
			log.Printf("warning: failed to load resource for object %s: %v", obj.ID, err)
			continue
		}
		store.UpdateObject(obj.ID, func(o *models.BoardObject) {
			o.Resource = img
		})
	}
}

func waitForInterrupt(ctx context.Context, cancel context.CancelFunc, s *Session) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Printf("Session running on board %s (conn %d). Ctrl-C to stop.", s.Store.BoardID(), s.Channel.ConnID())

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	cancel()
	finalFlush(s)
	return nil
}

// finalFlush attempts one last save so an interrupt does not drop the
// most recent edits.
func finalFlush(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Scheduler.Tick(ctx); err != nil {
		log.Printf("warning: final save failed: %v", err)
	}
}
