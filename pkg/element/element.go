// Package element resolves the network elements that own configuration series.
package element

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an element cannot be resolved.
var ErrNotFound = errors.New("element not found")

// Element is the identity of a network element.
type Element struct {
	ID    uuid.UUID `json:"element_id" yaml:"id"`
	Name  string    `json:"element_name" yaml:"name"`
	Alias string    `json:"element_alias,omitempty" yaml:"alias"`
	Role  string    `json:"element_role,omitempty" yaml:"role"`
	Group string    `json:"group,omitempty" yaml:"group"`
}

// Ref references an element either by id or by name.
type Ref struct {
	ID   uuid.UUID
	Name string
}

// namespace derives stable ids for elements declared by name only.
var namespace = uuid.MustParse("5b0e0d6c-3f3e-4c52-9a53-7c1f8f4ad1e2")

// ParseID parses an element id.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid element id %q: %w", s, err)
	}
	return id, nil
}

// NameID derives a stable id from an element name.
func NameID(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

// ByID references an element by id.
func ByID(id uuid.UUID) Ref { return Ref{ID: id} }

// ByName references an element by name.
func ByName(name string) Ref { return Ref{Name: name} }

// ParseRef treats UUID-shaped strings as ids and everything else as names.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, errors.New("element reference is empty")
	}
	if id, err := uuid.Parse(s); err == nil {
		return ByID(id), nil
	}
	return ByName(s), nil
}

// IsID reports whether the reference carries an id.
func (r Ref) IsID() bool { return r.ID != uuid.Nil }

func (r Ref) String() string {
	if r.IsID() {
		return r.ID.String()
	}
	return r.Name
}

// Resolver looks up elements.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (Element, error)
}

// MemoryResolver resolves elements from a static inventory.
type MemoryResolver struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Element
	byName map[string]uuid.UUID
}

// NewMemoryResolver creates a resolver seeded with elements.
func NewMemoryResolver(elements ...Element) *MemoryResolver {
	r := &MemoryResolver{
		byID:   make(map[uuid.UUID]Element),
		byName: make(map[string]uuid.UUID),
	}
	for _, e := range elements {
		r.Add(e)
	}
	return r
}

// Add registers or replaces an element.
func (r *MemoryResolver) Add(e Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[e.ID]; ok {
		delete(r.byName, old.Name)
	}
	r.byID[e.ID] = e
	r.byName[e.Name] = e.ID
}

// Resolve looks up an element by id or name.
func (r *MemoryResolver) Resolve(_ context.Context, ref Ref) (Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := ref.ID
	if !ref.IsID() {
		var ok bool
		if id, ok = r.byName[ref.Name]; !ok {
			return Element{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
	}
	e, ok := r.byID[id]
	if !ok {
		return Element{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return e, nil
}

// List returns all elements ordered by name.
func (r *MemoryResolver) List() []Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Element, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Element) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Verify interface compliance.
var _ Resolver = (*MemoryResolver)(nil)
