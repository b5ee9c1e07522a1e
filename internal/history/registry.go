package history

import (
	"context"
	"sync"

	dErrors "otakudb/pkg/domain-errors"
)

// Tracked is the capability interface every moderated entity implements.
// The engine dispatches on it instead of inspecting runtime types.
type Tracked interface {
	// TypeTag identifies the entity type in the registry and the ledger.
	TypeTag() string
	// EntityID returns the persisted identifier, or 0 for unsaved entities.
	EntityID() int64
	// EntityLabel is the human-readable description cached on ledger entries.
	EntityLabel() string
	// Snapshot captures the entity's current in-memory field state.
	Snapshot() Snapshot
}

// EntityHandler performs storage operations for one registered entity type.
// RevertSnapshot must read persisted state, ignoring in-memory edits, so the
// ledger always gets a true "before" view.
type EntityHandler interface {
	RevertSnapshot(ctx context.Context, id int64) (Snapshot, error)
	// Apply commits the given fields; id 0 creates and returns the new id.
	Apply(ctx context.Context, id int64, after Snapshot) (int64, error)
	Delete(ctx context.Context, id int64) error
	// Label derives the human-readable label from a field snapshot, used to
	// refresh ledger entries after a deferred commit.
	Label(after Snapshot) string
}

// RelatedHandler edits a child collection as a group, matching children by
// identity. ApplyChildren returns refreshed snapshots so newly created
// children report their assigned ids.
type RelatedHandler interface {
	ChildrenSnapshot(ctx context.Context, parentID int64) ([]Snapshot, error)
	ApplyChildren(ctx context.Context, parentID int64, after []Snapshot) ([]Snapshot, error)
}

// FieldDescriptor is one comparable field of a registered type, in
// declaration order. Moderated fields force pending review on change.
type FieldDescriptor struct {
	Name      string
	Label     string
	Moderated bool
}

// Descriptor is the registered metadata for one entity type. Descriptors are
// installed once at startup and read-only afterwards.
type Descriptor struct {
	TypeTag string
	// Label is the human-readable type name used in notices and diffs.
	Label string
	// IDField names the identifier field inside child snapshots; defaults to "id".
	IDField string
	Fields  []FieldDescriptor
	// AutoApproveKinds are the request kinds eligible for heuristic
	// self-approval; defaults to {Modify, Related}.
	AutoApproveKinds []Kind
	Handler          EntityHandler
	// RelatedHandler is set on types that appear as a child collection.
	RelatedHandler RelatedHandler
}

// FieldNames returns the declared field order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

func (d *Descriptor) FieldLabel(name string) string {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Label
		}
	}
	return name
}

func (d *Descriptor) IsModerated(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Moderated
		}
	}
	return false
}

func (d *Descriptor) autoApproves(kind Kind) bool {
	for _, k := range d.AutoApproveKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Registry maps type tags to descriptors. It replaces runtime type
// inspection: anything the engine needs to know about an entity type is
// resolved through here.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register installs a descriptor, applying defaults. Registering the same
// tag twice is a wiring bug and fails loudly.
func (r *Registry) Register(d *Descriptor) error {
	if d.TypeTag == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "descriptor needs a type tag")
	}
	if len(d.Fields) == 0 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "descriptor %q needs fields", d.TypeTag)
	}
	if d.IDField == "" {
		d.IDField = "id"
	}
	if d.AutoApproveKinds == nil {
		d.AutoApproveKinds = []Kind{KindModify, KindRelated}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[d.TypeTag]; exists {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "type %q already registered", d.TypeTag)
	}
	r.types[d.TypeTag] = d
	return nil
}

func (r *Registry) Lookup(tag string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.types[tag]; ok {
		return d, nil
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown entity type %q", tag)
}
