package catalog

import (
	"slices"
	"sync"
)

// Catalog is a concurrency-safe product table keyed by code.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Product
	codes    []string
	version  uint64
}

// New creates a catalogue holding products. Later entries override earlier ones.
func New(products ...Product) *Catalog {
	c := &Catalog{}
	c.Replace(products)

	return c
}

// Lookup returns the product with code.
func (c *Catalog) Lookup(code string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[code]

	return p, ok
}

// Codes returns every known code in sorted order.
func (c *Catalog) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.codes)
}

// Products returns every product ordered by code.
func (c *Catalog) Products() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Product, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, c.products[code])
	}

	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.products)
}

// Version increases on every Replace.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

// Replace swaps the whole table.
func (c *Catalog) Replace(products []Product) {
	table := make(map[string]Product, len(products))
	for _, p := range products {
		if p.Currency == "" {
			p.Currency = DefaultCurrency
		}

		table[p.Code] = p
	}

	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}

	slices.Sort(codes)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.products = table
	c.codes = codes
	c.version++
}
