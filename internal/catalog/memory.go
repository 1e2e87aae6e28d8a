// Package catalog holds the in-memory activity catalog used by the roster service.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"example.com/rosters/internal/domain"
)

// InMemoryCatalog stores activities in insertion order behind a single lock.
type InMemoryCatalog struct {
	mu         sync.RWMutex
	order      []domain.ActivityName
	activities map[domain.ActivityName]*domain.Activity
}

// New builds a catalog from the supplied seed activities.
// Seeds are validated and names must be unique.
func New(seed ...domain.Activity) (*InMemoryCatalog, error) {
	c := &InMemoryCatalog{
		activities: make(map[domain.ActivityName]*domain.Activity, len(seed)),
	}
	for _, activity := range seed {
		if err := c.add(activity); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewDefault builds a catalog populated with DefaultActivities.
func NewDefault() *InMemoryCatalog {
	c, err := New(DefaultActivities()...)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid default seed: %v", err))
	}
	return c
}

func (c *InMemoryCatalog) add(activity domain.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	if _, exists := c.activities[activity.Name]; exists {
		return fmt.Errorf("duplicate activity %q", activity.Name)
	}
	stored := activity.Clone()
	c.activities[activity.Name] = &stored
	c.order = append(c.order, activity.Name)
	return nil
}

// List implements domain.CatalogStore.
func (c *InMemoryCatalog) List(ctx context.Context) ([]domain.Activity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Activity, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.activities[name].Clone())
	}
	return out, nil
}

// Get implements domain.CatalogStore.
func (c *InMemoryCatalog) Get(ctx context.Context, name domain.ActivityName) (*domain.Activity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	activity, ok := c.activities[name]
	if !ok {
		return nil, nil
	}
	clone := activity.Clone()
	return &clone, nil
}

// Mutate implements domain.CatalogStore. fn runs on a copy under the write
// lock and the copy replaces the stored record only when fn succeeds.
func (c *InMemoryCatalog) Mutate(ctx context.Context, name domain.ActivityName, fn domain.MutateFunc) (*domain.Activity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.activities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrActivityNotFound, name)
	}

	draft := current.Clone()
	if err := fn(&draft); err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft.Revision = current.Revision + 1
	c.activities[name] = &draft

	result := draft.Clone()
	return &result, nil
}

// Len returns the number of activities in the catalog.
func (c *InMemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
