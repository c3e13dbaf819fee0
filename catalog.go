package bridge

import (
	"context"
	"fmt"
	"sync"
)

// Product is the pricing lookup result for one catalog item.
type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

// CatalogLookup resolves item references to canonical products. It is
// consumed while building line items from a checkout request.
type CatalogLookup interface {
	Lookup(ctx context.Context, itemRef string) (Product, error)
}

// CatalogLookupFunc lifts bare functions into [CatalogLookup].
type CatalogLookupFunc func(ctx context.Context, itemRef string) (Product, error)

// Lookup delegates to the wrapped function.
func (f CatalogLookupFunc) Lookup(ctx context.Context, itemRef string) (Product, error) {
	return f(ctx, itemRef)
}

// StaticCatalog serves a fixed product table. Useful for tests and the demo
// server; production deployments inject a real catalog client.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewStaticCatalog builds a catalog over the given products.
func NewStaticCatalog(products ...Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Add inserts or replaces a product.
func (c *StaticCatalog) Add(p Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

// Lookup implements [CatalogLookup].
func (c *StaticCatalog) Lookup(_ context.Context, itemRef string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[itemRef]
	if !ok {
		return Product{}, fmt.Errorf("catalog: no product %q", itemRef)
	}
	return p, nil
}
