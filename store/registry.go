package store

import (
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
)

// Conventions maps entity names to the collection names used as key prefixes.
//
// Without an override the collection is the lower-cased plural of the entity
// name: "Album" becomes "albums", "Person" becomes "people".
type Conventions struct {
	mu          sync.RWMutex
	collections map[string]string
}

// NewConventions creates Conventions with no overrides.
func NewConventions() *Conventions {
	return &Conventions{
		collections: make(map[string]string),
	}
}

// Register overrides the collection name for an entity name.
// This should be called during setup, before the store is shared.
func (c *Conventions) Register(entityName, collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[entityName] = collection
}

// CollectionName returns the collection for an entity name.
func (c *Conventions) CollectionName(entityName string) string {
	c.mu.RLock()
	collection, ok := c.collections[entityName]
	c.mu.RUnlock()
	if ok {
		return collection
	}
	return strings.ToLower(inflection.Plural(entityName))
}

// Overrides returns a copy of the registered overrides.
func (c *Conventions) Overrides() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.collections))
	for k, v := range c.collections {
		out[k] = v
	}
	return out
}
