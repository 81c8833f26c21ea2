// ABOUTME: Bidirectional projection between the runtime store and the replicated list
// ABOUTME: Structural-equality guards in both directions stop publish/apply feedback loops
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	stdsync "sync"
	"time"

	"github.com/harperreed/mural/backend"
	"github.com/harperreed/mural/board"
	"github.com/harperreed/mural/models"
)

// resolveTimeout bounds the resource resolution of one remote apply.
const resolveTimeout = 30 * time.Second

// Bridge keeps one board's runtime object list converged with the
// replicated list in the shared store.
//
// Both directions carry a change-suppression guard keyed on the
// serialized replicated form:
//
//   - Local -> Replicated publishes only when the projection differs
//     from the last published bytes (every Set is a network write).
//   - Replicated -> Local applies only when the incoming bytes differ
//     from what this client would itself publish, which is what stops
//     a client's own write from being re-applied as an incoming update.
//
// Without the pair, every publish would bounce between clients forever.
type Bridge struct {
	store  *board.Store
	shared backend.SharedStore
	loader models.ResourceLoader

	objectsKey string
	metaKey    string

	mu          stdsync.Mutex
	lastObjects []byte
	lastMeta    []byte

	unsubs []func()
}

// NewBridge wires a store to the shared replicated storage. The loader
// resolves object resources when remote changes arrive.
func NewBridge(store *board.Store, shared backend.SharedStore, loader models.ResourceLoader) *Bridge {
	return &Bridge{
		store:      store,
		shared:     shared,
		loader:     loader,
		objectsKey: backend.ObjectsKey(store.BoardID()),
		metaKey:    backend.MetaKey(store.BoardID()),
	}
}

// Start pulls the current replicated state, then subscribes both
// directions. Must be called once; Stop undoes it.
func (b *Bridge) Start(ctx context.Context) error {
	if data, err := b.shared.Get(ctx, b.metaKey); err == nil {
		b.applyRemoteMeta(data)
	} else if !errors.Is(err, backend.ErrNotFound) {
		return err
	}

	if data, err := b.shared.Get(ctx, b.objectsKey); err == nil {
		b.applyRemoteObjects(data)
	} else if !errors.Is(err, backend.ErrNotFound) {
		return err
	}

	b.unsubs = append(b.unsubs,
		b.shared.Subscribe(b.objectsKey, b.applyRemoteObjects),
		b.shared.Subscribe(b.metaKey, b.applyRemoteMeta),
		b.store.Listen(func(ch board.Change) {
			switch ch.Kind {
			case board.ChangeObjects:
				if err := b.PublishObjects(context.Background()); err != nil {
					log.Printf("sync: publish objects failed: %v", err)
				}
			case board.ChangeMeta:
				if err := b.PublishMeta(context.Background()); err != nil {
					log.Printf("sync: publish meta failed: %v", err)
				}
			}
		}),
	)

	// Ensure a fresh board's state exists remotely.
	if err := b.PublishObjects(ctx); err != nil {
		return err
	}
	return b.PublishMeta(ctx)
}

// Stop cancels all subscriptions.
func (b *Bridge) Stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

// PublishObjects runs the Local -> Replicated direction once: project,
// compare, and publish only on difference.
func (b *Bridge) PublishObjects(ctx context.Context) error {
	data, err := models.MarshalReplicated(models.ProjectReplicated(b.store.Objects()))
	if err != nil {
		return err
	}

	b.mu.Lock()
	if bytes.Equal(data, b.lastObjects) {
		b.mu.Unlock()
		return nil
	}
	b.lastObjects = data
	b.mu.Unlock()

	if err := b.shared.Set(ctx, b.objectsKey, data); err != nil {
		// Forget the failed publish so the next mutation retries it.
		b.mu.Lock()
		b.lastObjects = nil
		b.mu.Unlock()
		return err
	}
	return nil
}

// PublishMeta publishes the board metadata under the same guard.
func (b *Bridge) PublishMeta(ctx context.Context) error {
	data, err := json.Marshal(b.store.Meta())
	if err != nil {
		return err
	}

	b.mu.Lock()
	if bytes.Equal(data, b.lastMeta) {
		b.mu.Unlock()
		return nil
	}
	b.lastMeta = data
	b.mu.Unlock()

	if err := b.shared.Set(ctx, b.metaKey, data); err != nil {
		b.mu.Lock()
		b.lastMeta = nil
		b.mu.Unlock()
		return err
	}
	return nil
}

// applyRemoteObjects runs the Replicated -> Local direction: skip when
// the incoming bytes match what we would publish, otherwise resolve
// all resources in parallel and replace the runtime list atomically.
func (b *Bridge) applyRemoteObjects(data []byte) {
	current, err := models.MarshalReplicated(models.ProjectReplicated(b.store.Objects()))
	if err != nil {
		log.Printf("sync: projecting local objects failed: %v", err)
		return
	}
	if bytes.Equal(data, current) {
		// Our own write echoed back, or already converged.
		b.mu.Lock()
		b.lastObjects = append([]byte(nil), data...)
		b.mu.Unlock()
		return
	}

	reps, err := models.UnmarshalReplicated(data)
	if err != nil {
		log.Printf("sync: bad replicated object list: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	objects := b.resolveAll(ctx, reps)

	// Record the incoming bytes first so the ReplaceObjects listener's
	// publish pass compares equal and stays silent.
	b.mu.Lock()
	b.lastObjects = append([]byte(nil), data...)
	b.mu.Unlock()

	b.store.ReplaceObjects(objects)
}

// resolveAll rehydrates every replicated object, loading resources in
// parallel. A failed load degrades that one object (it keeps its place
// with no decoded raster) instead of aborting the whole apply.
func (b *Bridge) resolveAll(ctx context.Context, reps []*models.ReplicatedObject) []*models.BoardObject {
	objects := make([]*models.BoardObject, len(reps))

	var wg stdsync.WaitGroup
	for i, rep := range reps {
		objects[i] = rep.Runtime()
		if rep.RemoteURL == "" || b.loader == nil {
			continue
		}

		wg.Add(1)
		go func(obj *models.BoardObject, id, url string) {
			defer wg.Done()
			img, err := b.loader.Load(ctx, id, url)
			if err != nil {
				log.Printf("sync: resource for object %s did not load: %v", id, err)
				return
			}
			obj.Resource = img
		}(objects[i], rep.ID, rep.RemoteURL)
	}
	wg.Wait()

	return objects
}

// applyRemoteMeta applies a remote metadata change under the same
// own-write guard.
func (b *Bridge) applyRemoteMeta(data []byte) {
	current, err := json.Marshal(b.store.Meta())
	if err != nil {
		return
	}
	if bytes.Equal(data, current) {
		b.mu.Lock()
		b.lastMeta = append([]byte(nil), data...)
		b.mu.Unlock()
		return
	}

	var meta models.BoardMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Printf("sync: bad board meta: %v", err)
		return
	}

	b.mu.Lock()
	b.lastMeta = append([]byte(nil), data...)
	b.mu.Unlock()

	b.store.SetMeta(meta)
}
