package history

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"otakudb/internal/audit"
	"otakudb/internal/options"
	dErrors "otakudb/pkg/domain-errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Shared Engine Fixture
// =============================================================================
// The engine is exercised against a small fake "article" entity so these
// tests stay independent of the catalog package, which itself builds on this
// one.

type testArticle struct {
	ID     int64
	Title  string
	Body   string
	Rating int64
}

func (a *testArticle) TypeTag() string     { return "article" }
func (a *testArticle) EntityID() int64     { return a.ID }
func (a *testArticle) EntityLabel() string { return a.Title }

func (a *testArticle) Snapshot() Snapshot {
	return Snapshot{
		"title":  a.Title,
		"body":   a.Body,
		"rating": a.Rating,
	}
}

// fakeArticleHandler persists article snapshots in a map, standing in for an
// entity store.
type fakeArticleHandler struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Snapshot

	applyErr error
}

func newFakeArticleHandler() *fakeArticleHandler {
	return &fakeArticleHandler{rows: map[int64]Snapshot{}}
}

func (h *fakeArticleHandler) put(id int64, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id > h.nextID {
		h.nextID = id
	}
	h.rows[id] = cloneSnapshot(snap)
}

func (h *fakeArticleHandler) get(id int64) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.rows[id]
	return cloneSnapshot(snap), ok
}

func (h *fakeArticleHandler) RevertSnapshot(_ context.Context, id int64) (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.rows[id]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "article %d not found", id)
	}
	return cloneSnapshot(snap), nil
}

func (h *fakeArticleHandler) Apply(_ context.Context, id int64, after Snapshot) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.applyErr != nil {
		return 0, h.applyErr
	}
	if id == 0 {
		h.nextID++
		h.rows[h.nextID] = cloneSnapshot(after)
		return h.nextID, nil
	}
	row, ok := h.rows[id]
	if !ok {
		return 0, dErrors.Newf(dErrors.CodeNotFound, "article %d not found", id)
	}
	for name, value := range after {
		row[name] = value
	}
	return id, nil
}

func (h *fakeArticleHandler) Delete(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rows[id]; !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "article %d not found", id)
	}
	delete(h.rows, id)
	return nil
}

func (h *fakeArticleHandler) Label(after Snapshot) string {
	title, _ := after["title"].(string)
	return title
}

// fakeTagHandler is the related-collection fake: article tags matched by id.
type fakeTagHandler struct {
	mu     sync.Mutex
	nextID int64
	byArt  map[int64][]Snapshot
}

func newFakeTagHandler() *fakeTagHandler {
	return &fakeTagHandler{byArt: map[int64][]Snapshot{}}
}

func (h *fakeTagHandler) seed(articleID int64, tags ...Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tag := range tags {
		h.nextID++
		tag["id"] = h.nextID
	}
	h.byArt[articleID] = cloneSnapshots(tags)
}

func (h *fakeTagHandler) ChildrenSnapshot(_ context.Context, parentID int64) ([]Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneSnapshots(h.byArt[parentID]), nil
}

func (h *fakeTagHandler) ApplyChildren(_ context.Context, parentID int64, after []Snapshot) ([]Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	refreshed := cloneSnapshots(after)
	for _, tag := range refreshed {
		if childID(tag, "id") == 0 {
			h.nextID++
			tag["id"] = h.nextID
		}
	}
	h.byArt[parentID] = cloneSnapshots(refreshed)
	return refreshed, nil
}

// testEngine bundles a fully wired in-memory engine.
type testEngine struct {
	store    *InMemoryStore
	options  *options.Service
	audit    *audit.InMemoryStore
	handler  *fakeArticleHandler
	tags     *fakeTagHandler
	registry *Registry
	gate     *Gate
	ledger   *Ledger
	tracker  *Tracker
	mod      *Moderator
}

func newTestEngine() *testEngine {
	e := &testEngine{
		store:    NewInMemoryStore(),
		audit:    audit.NewInMemoryStore(),
		handler:  newFakeArticleHandler(),
		tags:     newFakeTagHandler(),
		registry: NewRegistry(),
	}
	e.options = options.New(options.NewInMemoryStore())

	if err := e.registry.Register(&Descriptor{
		TypeTag: "article",
		Label:   "article",
		Fields: []FieldDescriptor{
			{Name: "title", Label: "Title", Moderated: true},
			{Name: "body", Label: "Body"},
			{Name: "rating", Label: "Rating"},
		},
		Handler:        e.handler,
		RelatedHandler: e.tags,
	}); err != nil {
		panic(err)
	}
	if err := e.registry.Register(&Descriptor{
		TypeTag: "tag",
		Label:   "tag",
		Fields: []FieldDescriptor{
			{Name: "name", Label: "Name"},
		},
		Handler: newFakeArticleHandler(),
	}); err != nil {
		panic(err)
	}

	logger := discardLogger()
	publisher := audit.NewPublisher(e.audit, logger)
	e.ledger = NewLedger(e.store, e.registry, logger)
	e.gate = NewGate(e.store, e.options)
	e.tracker = NewTracker(e.ledger, e.gate, e.options, nil, nil, publisher, logger)
	e.mod = NewModerator(e.ledger, nil, nil, publisher, logger)
	return e
}

// seedArticle installs a persisted article in the fake store and returns the
// matching in-memory entity.
func (e *testEngine) seedArticle(id int64, title, body string, rating int64) *testArticle {
	a := &testArticle{ID: id, Title: title, Body: body, Rating: rating}
	e.handler.put(id, a.Snapshot())
	return a
}

func (e *testEngine) auditActions() []string {
	events := e.audit.All()
	actions := make([]string, len(events))
	for i, ev := range events {
		actions[i] = ev.Action
	}
	return actions
}

func tagSnap(name string) Snapshot {
	return Snapshot{"name": name}
}
