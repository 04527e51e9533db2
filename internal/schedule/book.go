package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"chicommute/internal/metrics"
)

var ErrNotFound = errors.New("schedule item not found")

// PersistError is returned when the store could not be read or written. The
// in-memory list has still been updated and stays authoritative for the
// session.
type PersistError struct {
	Op     string // load|save
	UserID string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s schedules for %s: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

type entry struct {
	mu     sync.Mutex
	loaded bool
	// loadErr is the last failed load; set until a load succeeds.
	loadErr error
	items   []Item
}

// Book holds each signed-in user's ordered schedule list and writes every
// change through to a Store. Until the stored document has been read, changes
// stay in memory and are merged into it once a load succeeds.
type Book struct {
	store   Store
	metrics *metrics.Collector

	mu    sync.Mutex
	users map[string]*entry
}

func NewBook(store Store, m *metrics.Collector) *Book {
	return &Book{store: store, metrics: m, users: map[string]*entry{}}
}

func (b *Book) entry(userID string) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.users[userID]
	if !ok {
		e = &entry{}
		b.users[userID] = e
	}
	return e
}

// Load replaces the user's list with the stored document. A failed load is
// remembered and retried on the next access.
func (b *Book) Load(ctx context.Context, userID string) error {
	e := b.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return b.loadLocked(ctx, userID, e)
}

func (b *Book) loadLocked(ctx context.Context, userID string, e *entry) error {
	items, err := b.store.Load(ctx, userID)
	if err != nil {
		if b.metrics != nil {
			b.metrics.ScheduleLoadErrors.Inc()
		}
		log.Printf("load schedules for %s: %v", userID, err)
		e.loadErr = &PersistError{Op: "load", UserID: userID, Err: err}
		return e.loadErr
	}
	if items == nil {
		items = []Item{}
	}
	var pending []Item
	if !e.loaded {
		pending = e.items
	}
	e.items = items
	e.loaded = true
	e.loadErr = nil
	if len(pending) == 0 {
		return nil
	}
	for _, it := range pending {
		e.items = upsertItem(e.items, it)
	}
	return b.saveLocked(ctx, userID, e)
}

// ensureLoaded reads the stored document if it has not been read yet.
func (b *Book) ensureLoaded(ctx context.Context, userID string, e *entry) error {
	if e.loaded {
		return nil
	}
	return b.loadLocked(ctx, userID, e)
}

// Clear forgets the user's list without touching the store.
func (b *Book) Clear(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.users, userID)
}

// List returns a copy of the user's list, loading it on first access.
func (b *Book) List(ctx context.Context, userID string) ([]Item, error) {
	e := b.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	err := b.ensureLoaded(ctx, userID, e)
	if e.items == nil {
		return []Item{}, err
	}
	return cloneItems(e.items), err
}

// Upsert validates it and either replaces the item with the same id or
// appends it. Items without an id get a fresh one.
func (b *Book) Upsert(ctx context.Context, userID string, it Item) (Item, error) {
	it = it.Normalize()
	if err := it.Validate(); err != nil {
		return Item{}, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	e := b.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	loadErr := b.ensureLoaded(ctx, userID, e)
	e.items = upsertItem(e.items, it)
	if loadErr != nil {
		return it, loadErr
	}
	return it, b.saveLocked(ctx, userID, e)
}

func (b *Book) Delete(ctx context.Context, userID, id string) error {
	e := b.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	loadErr := b.ensureLoaded(ctx, userID, e)

	idx := -1
	for i := range e.items {
		if e.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		if loadErr != nil {
			return loadErr
		}
		return ErrNotFound
	}
	e.items = append(e.items[:idx:idx], e.items[idx+1:]...)
	if loadErr != nil {
		return loadErr
	}
	return b.saveLocked(ctx, userID, e)
}

// upsertItem replaces the item with the same id or appends it.
func upsertItem(items []Item, it Item) []Item {
	for i := range items {
		if items[i].ID == it.ID {
			items[i] = it
			return items
		}
	}
	return append(items, it)
}

func (b *Book) saveLocked(ctx context.Context, userID string, e *entry) error {
	if err := b.store.Save(ctx, userID, cloneItems(e.items)); err != nil {
		if b.metrics != nil {
			b.metrics.ScheduleSaveErrors.Inc()
		}
		log.Printf("save schedules for %s: %v", userID, err)
		return &PersistError{Op: "save", UserID: userID, Err: err}
	}
	return nil
}
