// Package catalog resolves product ids to the summary stored with cart items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

type Catalog interface {
	Lookup(ctx context.Context, productID int64) (domain.ProductSummary, error)
}

type Memory struct {
	mu       sync.RWMutex
	products map[int64]domain.ProductSummary
}

func NewMemory(products ...domain.ProductSummary) *Memory {
	m := &Memory{products: make(map[int64]domain.ProductSummary, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// LoadFile reads a JSON array of products.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var products []domain.ProductSummary
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	for _, p := range products {
		if p.ID <= 0 {
			return nil, fmt.Errorf("decode catalog %s: product %q has invalid id %d", path, p.Name, p.ID)
		}
	}
	return NewMemory(products...), nil
}

func (m *Memory) Lookup(_ context.Context, productID int64) (domain.ProductSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return domain.ProductSummary{}, ErrProductNotFound
	}
	return p, nil
}

func (m *Memory) Put(p domain.ProductSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) List() []domain.ProductSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ProductSummary, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultProducts is the demo catalog served when nothing else is configured.
func DefaultProducts() []domain.ProductSummary {
	return []domain.ProductSummary{
		{ID: 1, Name: "Espresso Cup", Price: 9.50, ImageURL: "/img/espresso-cup.jpg"},
		{ID: 2, Name: "Pour-Over Kettle", Price: 42.00, ImageURL: "/img/kettle.jpg"},
		{ID: 3, Name: "Burr Grinder", Price: 129.99, ImageURL: "/img/grinder.jpg"},
		{ID: 4, Name: "Paper Filters (100)", Price: 6.25, ImageURL: "/img/filters.jpg"},
		{ID: 5, Name: "Single Origin Beans 250g", Price: 14.80, ImageURL: "/img/beans.jpg"},
	}
}
