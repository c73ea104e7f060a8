package kb

import (
	"sync"

	"gateway/internal/gatewayerr"
)

// Catalog is the set of knowledge bases the gateway is configured to serve,
// backing the GET/DELETE /v1/knowledge-bases* endpoints. Full control-plane
// metadata lives with the provider; the catalog holds only the ids and
// display metadata seeded at startup, so listing never requires a
// control-plane round trip per request.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]KnowledgeBase
}

// NewCatalog builds a Catalog from a configured list of knowledge bases.
func NewCatalog(kbs []KnowledgeBase) *Catalog {
	c := &Catalog{byID: make(map[string]KnowledgeBase, len(kbs))}
	for _, kb := range kbs {
		c.byID[kb.ID] = kb
	}
	return c
}

// List returns all configured knowledge bases.
func (c *Catalog) List() []KnowledgeBase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]KnowledgeBase, 0, len(c.byID))
	for _, kb := range c.byID {
		out = append(out, kb)
	}
	return out
}

// Get resolves one knowledge base by id.
func (c *Catalog) Get(id string) (KnowledgeBase, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kb, ok := c.byID[id]
	if !ok {
		return KnowledgeBase{}, gatewayerr.New(gatewayerr.KindFileNotFound, "knowledge base not found: "+id)
	}
	return kb, nil
}

// Delete removes a knowledge base from the catalog. It unregisters the
// gateway's reference only; the provider-side knowledge base is untouched.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return gatewayerr.New(gatewayerr.KindFileNotFound, "knowledge base not found: "+id)
	}
	delete(c.byID, id)
	return nil
}
